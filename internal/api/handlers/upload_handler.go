package handlers

import (
	"context"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"
	"video_ingest_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UploadSlotRequester app.UploadIntake
type UploadSlotRequester interface {
	RequestUploadSlot(ctx context.Context, contentType, fileName string) (*domain.UploadSlot, error)
}

// UploadHandler 处理上传相关的 HTTP 请求
type UploadHandler struct {
	Intake UploadSlotRequester
}

// NewUploadHandler create UploadHandler
func NewUploadHandler(intake UploadSlotRequester) *UploadHandler {
	return &UploadHandler{Intake: intake}
}

// RequestUploadSlot POST /uploads {contentType, fileName} -> {assetId, objectKey, writeGrant}
func (h *UploadHandler) RequestUploadSlot(c *fiber.Ctx) error {
	type request struct {
		ContentType string `json:"contentType"`
		FileName    string `json:"fileName"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	slot, err := h.Intake.RequestUploadSlot(c.UserContext(), req.ContentType, req.FileName)
	if err != nil {
		status := errorStatus(err)
		logger.Log.Warn("request upload slot failed",
			zap.Int("status", status), zap.Any("subject", c.Locals(middlewares.TokenSubject)), zap.Error(err))
		return c.Status(status).JSON(errorBody(status))
	}

	logger.Log.Debug("upload slot", zap.String("asset_id", slot.AssetID), zap.Any("subject", c.Locals(middlewares.TokenSubject)))
	return c.Status(fiber.StatusCreated).JSON(slot)
}

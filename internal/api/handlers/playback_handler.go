package handlers

import (
	"context"
	"strings"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"
	"video_ingest_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// PlaybackRequester app.AccessGate
type PlaybackRequester interface {
	RequestPlaybackURL(ctx context.Context, assetID, viewerCountry string) (*domain.PlaybackGrant, error)
}

// PlaybackHandler 处理播放授权
type PlaybackHandler struct {
	Gate PlaybackRequester
}

// NewPlaybackHandler create PlaybackHandler
func NewPlaybackHandler(gate PlaybackRequester) *PlaybackHandler {
	return &PlaybackHandler{Gate: gate}
}

// RequestPlaybackURL POST /videos/:asset_id/playback -> {signedURL, expiresAt}
// viewer country comes from middlewares.EdgeGeo only.
func (h *PlaybackHandler) RequestPlaybackURL(c *fiber.Ctx) error {
	assetID := strings.TrimSpace(c.Params("asset_id"))
	if assetID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	grant, err := h.Gate.RequestPlaybackURL(c.UserContext(), assetID, middlewares.GetViewerCountry(c))
	if err != nil {
		status := errorStatus(err)
		if status >= fiber.StatusInternalServerError {
			logger.Log.Error("request playback url failed", zap.String("asset_id", assetID), zap.Error(err))
		}
		return c.Status(status).JSON(errorBody(status))
	}
	return c.JSON(grant)
}

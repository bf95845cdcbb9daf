package router

import (
	"video_ingest_service/internal/api/handlers"
	"video_ingest_service/pkg/middlewares"
	t_token "video_ingest_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册 gateway 路由
func RegisterRoutes(app *fiber.App, jwtSecret []byte, geo fiber.Handler,
	uploadHandler *handlers.UploadHandler, playbackHandler *handlers.PlaybackHandler) {
	app.Get("/", handlers.ConnectCheck)
	app.Post("/debug", handlers.DebugLogFlag)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/uploads", middlewares.JWTMiddleware(jwtSecret, t_token.RoleAdmin), uploadHandler.RequestUploadSlot)

	videoRoutes := app.Group("/videos")
	videoRoutes.Use(geo)
	videoRoutes.Post("/:asset_id/playback", playbackHandler.RequestPlaybackURL)
}

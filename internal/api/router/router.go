package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"contest-review/config"
	"contest-review/internal/api/handler"
	"contest-review/internal/api/middleware"
	"contest-review/pkg/jwt"
)

// Setup 初始化并返回 Gin 路由引擎
// limiter 为 nil 时限流中间件降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, limiter middleware.RateLimiter, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if db != nil {
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 外部回调（共享密钥，不走 JWT）
		webhooks := v1.Group("/webhooks")
		webhooks.Use(middleware.RateLimit(limiter, 120, time.Minute))
		webhooks.Use(middleware.WebhookAuth(cfg.Server.WebhookSecret))
		{
			webhooks.POST("/payment-confirmed", h.Webhook.PaymentConfirmed)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr))
		{
			// 评审人
			assignments := authorized.Group("/assignments")
			{
				assignments.GET("/me", h.Assignment.ListMine)
				assignments.GET("/me/calendar.ics", h.Assignment.Calendar)
				assignments.POST("/:id/review", middleware.RateLimit(limiter, 60, time.Minute), h.Assignment.SubmitReview)
			}

			// 比赛阶段与排名（管理端）
			contests := authorized.Group("/contests")
			contests.Use(middleware.RoleAuth(jwt.RoleAdmin))
			{
				contests.POST("/:id/peer-review/start", h.Contest.StartPeerReview)
				contests.POST("/:id/peer-review/end", h.Contest.EndPeerReview)
				contests.GET("/:id/scores", h.Score.ListScores)
				contests.GET("/:id/scores/export", h.Score.ExportScores)
			}

			// 清扫
			sweeps := authorized.Group("/sweeps")
			sweeps.Use(middleware.RoleAuth(jwt.RoleAdmin))
			{
				sweeps.POST("", h.Sweep.RunSweep)
				sweeps.GET("", h.Sweep.ListRuns)
			}

			// 评审参数
			settings := authorized.Group("/review-settings")
			settings.Use(middleware.RoleAuth(jwt.RoleAdmin))
			{
				settings.GET("", h.Settings.GetSettings)
				settings.PUT("", h.Settings.UpdateSettings)
			}
		}
	}

	return r
}

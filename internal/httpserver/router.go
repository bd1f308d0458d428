package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pamsync/internal/handler"
	"pamsync/pkg/otel"
	"pamsync/pkg/rbac"
)

// Pinger reports whether a dependency is ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	syncHandler *handler.SyncHandler,
	taskHandler *handler.TaskHandler,
	notificationHandler *handler.NotificationHandler,
	jwtSecret string,
	checks map[string]Pinger,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), AccessLogMiddleware(logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				c.JSON(500, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}

		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		pam := auth.Group("/pam")
		pam.POST("/sync", RequirePermission(rbac.PermissionSyncTrigger), syncHandler.Sync)

		pam.GET("/weeks/:year/:week/tasks", taskHandler.ListPeriod)
		pam.POST("/tasks", taskHandler.Create)
		pam.GET("/tasks/:id", taskHandler.Get)
		pam.PATCH("/tasks/:id", taskHandler.Update)
		pam.DELETE("/tasks/:id", taskHandler.Delete)
		pam.POST("/tasks/:id/acknowledge", taskHandler.Acknowledge)
		pam.POST("/tasks/:id/evidence", taskHandler.UploadEvidence)
		pam.GET("/tasks/:id/evidence", taskHandler.ListEvidence)
		pam.POST("/tasks/:id/approve", taskHandler.Approve)
		pam.POST("/tasks/:id/reject", taskHandler.Reject)

		notifications := auth.Group("/notifications", RequirePermission(rbac.PermissionNotification))
		notifications.GET("", notificationHandler.List)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}

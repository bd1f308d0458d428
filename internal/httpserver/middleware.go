package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pamsync/internal/handler"
	"pamsync/internal/service/lifecycle"
	"pamsync/pkg/logger"
	"pamsync/pkg/metrics"
	"pamsync/pkg/rbac"
	"pamsync/pkg/trace"
	"pamsync/pkg/util"
)

// AuthMiddleware 校验 bearer token，并把调用者写入 context
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(handler.ActorKey, lifecycle.Actor{
			AccountID: claims.UserID,
			OrgID:     claims.OrgID,
			Role:      claims.Role,
		})
		c.Next()
	}
}

// RequirePermission 中间件：要求调用者的角色具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(handler.ActorKey)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			c.Abort()
			return
		}
		actor, ok := v.(lifecycle.Actor)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid actor"})
			c.Abort()
			return
		}

		if err := rbac.CheckPermission(actor.Role, permission); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Next()
	}
}

// TraceMiddleware 复用或生成 trace_id，并回写到响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.GetHeader(trace.HeaderName)
		if id != "" {
			ctx = trace.WithContext(ctx, id)
		} else {
			ctx, id = trace.Ensure(ctx)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName, id)
		c.Next()
	}
}

// AccessLogMiddleware 记录请求日志和延迟指标
func AccessLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		l := logger.WithTrace(c.Request.Context(), log)
		if status >= 500 {
			l.Error("HTTP request failed", fields...)
			return
		}
		l.Debug("HTTP request", fields...)
	}
}

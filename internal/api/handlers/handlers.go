package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/gocomet/ridematch/internal/api/dto"
	"github.com/gocomet/ridematch/internal/api/middleware"
	"github.com/gocomet/ridematch/internal/service/trips"
	"github.com/gocomet/ridematch/pkg/cache"
	apperrors "github.com/gocomet/ridematch/pkg/errors"
	"github.com/gocomet/ridematch/pkg/identity"
	"github.com/gocomet/ridematch/pkg/logger"
	"github.com/gocomet/ridematch/pkg/websocket"
)

// Handlers holds all handler dependencies
type Handlers struct {
	Trips  *trips.Service
	Hub    *websocket.Hub
	DB     *sql.DB       // nil with the memory store
	Redis  *redis.Client // nil when Redis is disabled
	Logger *logger.Logger

	upgrader websocketUpgrader
}

// NewHandlers creates a new Handlers instance
func NewHandlers(tripSvc *trips.Service, hub *websocket.Hub, db *sql.DB, redisClient *redis.Client, log *logger.Logger, readBuffer, writeBuffer int) *Handlers {
	return &Handlers{
		Trips:    tripSvc,
		Hub:      hub,
		DB:       db,
		Redis:    redisClient,
		Logger:   log,
		upgrader: newUpgrader(readBuffer, writeBuffer),
	}
}

// Health handles GET /health. Redis trouble only degrades presence, so it is
// reported without failing the check.
func (h *Handlers) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":      "healthy",
		"instance":    h.Hub.InstanceID(),
		"connections": h.Hub.GetActiveConnections(),
		"time":        time.Now().UTC(),
	}

	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			h.Logger.Warn("Database health check failed", logger.Err(err))
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = "down"
		} else {
			body["database"] = "up"
		}
	}

	if h.Redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		redisStatus := "up"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			redisStatus = "degraded"
		}
		body["redis"] = gin.H{"status": redisStatus, "pool": cache.GetClientStats(h.Redis)}
	}

	c.JSON(status, body)
}

// respondError renders err as {code, message}. Anything that is not an AppError is
// a 500 and is logged with its cause.
func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)

	if appErr.Status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed",
			logger.String("path", c.FullPath()),
			logger.String("code", appErr.Code),
			logger.Bool("unmapped", !apperrors.IsAppError(err)),
			logger.Err(err),
		)
	}

	c.JSON(appErr.Status, dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message})
}

func (h *Handlers) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.respondError(c, apperrors.Validation("invalid request payload: "+err.Error(), err))
		return false
	}
	return true
}

func caller(c *gin.Context) identity.Principal {
	if p := middleware.Principal(c); p != nil {
		return *p
	}
	return identity.Principal{}
}

package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"groupings-hub/internal/api/middleware"
	v1 "groupings-hub/internal/api/v1"
	"groupings-hub/internal/service"
	"groupings-hub/internal/sse"
	systemlog "groupings-hub/pkg/logger"
)

type Deps struct {
	Announcements          *service.AnnouncementService
	Location               *time.Location
	SSEHub                 *sse.SSEHub
	LogStore               *systemlog.Store
	InternalToken          string
	AnnouncementsPerMinute int
	Logger                 *zap.Logger
}

// RegisterRoutes mounts the announcement endpoints. The bare /announcements
// path mirrors the upstream groupings API so existing banner clients keep
// working against this service.
func RegisterRoutes(router *gin.Engine, deps Deps) {
	announcements := v1.NewAnnouncementHandler(deps.Announcements, deps.Location, deps.Logger)
	limiter := middleware.NewRateLimiter(deps.AnnouncementsPerMinute, time.Minute)

	v1.RegisterPublicAnnouncementRoutes(router, announcements, limiter)

	apiV1 := router.Group("/api/v1")
	v1.RegisterPublicAnnouncementRoutes(apiV1, announcements, limiter)
	v1.RegisterSSERoutes(apiV1, deps.SSEHub)

	admin := apiV1.Group("/admin")
	admin.Use(middleware.InternalTokenAuth(deps.InternalToken, false))
	v1.RegisterAdminAnnouncementRoutes(admin, announcements)
	v1.RegisterSystemRoutes(admin, deps.LogStore)
}

package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"groupings-hub/internal/announcement"
	"groupings-hub/internal/api/middleware"
	"groupings-hub/internal/api/response"
	inputsanitize "groupings-hub/internal/api/sanitize"
	"groupings-hub/internal/model"
	"groupings-hub/internal/service"
)

type AnnouncementHandler struct {
	announcementService *service.AnnouncementService
	location            *time.Location
	logger              *zap.Logger
}

type createAnnouncementRequest struct {
	Message string `json:"message" binding:"required"`
	Start   string `json:"start" binding:"required"`
	End     string `json:"end" binding:"required"`
}

type updateAnnouncementRequest struct {
	Message *string `json:"message"`
	Start   *string `json:"start"`
	End     *string `json:"end"`
}

// adminAnnouncement is the operator view of a stored announcement. State is
// derived at response time like on the public endpoint.
type adminAnnouncement struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewAnnouncementHandler(
	announcementService *service.AnnouncementService,
	location *time.Location,
	logger *zap.Logger,
) *AnnouncementHandler {
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementHandler{
		announcementService: announcementService,
		location:            location,
		logger:              logger,
	}
}

// RegisterPublicAnnouncementRoutes mounts the read endpoints. limiter guards
// every route and answers in the FAILURE payload shape.
func RegisterPublicAnnouncementRoutes(
	router gin.IRoutes,
	handler *AnnouncementHandler,
	limiter *middleware.RateLimiter,
) {
	limit := middleware.RateLimitByIP(limiter, func(c *gin.Context) {
		c.JSON(http.StatusTooManyRequests, announcement.FailurePayload())
	})
	router.GET("/announcements", limit, handler.Current)
	router.GET("/announcements/active", limit, handler.Active)
}

func RegisterAdminAnnouncementRoutes(group *gin.RouterGroup, handler *AnnouncementHandler) {
	ann := group.Group("/announcements")
	ann.GET("", handler.List)
	ann.GET("/:id", handler.GetByID)
	ann.POST("", handler.Create)
	ann.PUT("/:id", handler.Update)
	ann.DELETE("/:id", handler.Delete)
}

// Current
// @Summary Current announcements
// @Description Every announcement with its state evaluated at request time.
// @Tags announcement
// @Produce json
// @Success 200 {object} announcement.Payload
// @Failure 429 {object} announcement.Payload
// @Failure 502 {object} announcement.Payload
// @Router /api/v1/announcements [get]
func (h *AnnouncementHandler) Current(c *gin.Context) {
	items, err := h.announcementService.Current(c.Request.Context())
	h.writePayload(c, items, err)
}

// Active
// @Summary Active announcements
// @Tags announcement
// @Produce json
// @Success 200 {object} announcement.Payload
// @Failure 502 {object} announcement.Payload
// @Router /api/v1/announcements/active [get]
func (h *AnnouncementHandler) Active(c *gin.Context) {
	items, err := h.announcementService.Active(c.Request.Context())
	h.writePayload(c, items, err)
}

func (h *AnnouncementHandler) writePayload(c *gin.Context, items []announcement.Announcement, err error) {
	c.Header("Cache-Control", "no-store")
	if err != nil {
		h.logger.Warn("announcements unavailable",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, announcement.FailurePayload())
		return
	}
	c.JSON(http.StatusOK, announcement.NewPayload(items, h.location))
}

// List
// @Summary List stored announcements
// @Tags announcement-admin
// @Produce json
// @Param X-Internal-Token header string true "operator token"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/admin/announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	page, pageSize := service.NormalizeAnnouncementPagination(
		parseIntOrDefault(c.Query("page"), 1),
		parseIntOrDefault(c.Query("page_size"), 20),
	)

	items, total, err := h.announcementService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	now := h.announcementService.Now()
	out := make([]adminAnnouncement, 0, len(items))
	for _, item := range items {
		out = append(out, h.toAdmin(item, now))
	}
	response.Paginated(c, out, page, pageSize, total)
}

// GetByID
// @Summary Get a stored announcement
// @Tags announcement-admin
// @Produce json
// @Param id path string true "announcement id"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/admin/announcements/{id} [get]
func (h *AnnouncementHandler) GetByID(c *gin.Context) {
	item, err := h.announcementService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, h.toAdmin(item, h.announcementService.Now()))
}

// Create
// @Summary Create an announcement
// @Description start and end use the yyyyMMdd'T'HHmmss wire format.
// @Tags announcement-admin
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/admin/announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req createAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid request")
		return
	}

	startsAt, err := announcement.ParseTimestamp(req.Start, h.location)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid start")
		return
	}
	endsAt, err := announcement.ParseTimestamp(req.End, h.location)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid end")
		return
	}

	item, err := h.announcementService.Create(c.Request.Context(), service.CreateAnnouncementRequest{
		Message:  inputsanitize.Message(req.Message),
		StartsAt: startsAt,
		EndsAt:   endsAt,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	response.Success(c, h.toAdmin(item, h.announcementService.Now()))
}

// Update
// @Summary Update an announcement
// @Tags announcement-admin
// @Accept json
// @Produce json
// @Param id path string true "announcement id"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/admin/announcements/{id} [put]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	var req updateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid request")
		return
	}

	startsAt, err := h.parseOptionalTimestamp(req.Start)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid start")
		return
	}
	endsAt, err := h.parseOptionalTimestamp(req.End)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid end")
		return
	}

	item, err := h.announcementService.Update(c.Request.Context(), c.Param("id"), service.UpdateAnnouncementRequest{
		Message:  inputsanitize.MessagePtr(req.Message),
		StartsAt: startsAt,
		EndsAt:   endsAt,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	response.Success(c, h.toAdmin(item, h.announcementService.Now()))
}

// Delete
// @Summary Delete an announcement
// @Tags announcement-admin
// @Produce json
// @Param id path string true "announcement id"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/admin/announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	if err := h.announcementService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *AnnouncementHandler) parseOptionalTimestamp(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	ts, err := announcement.ParseTimestamp(*raw, h.location)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func (h *AnnouncementHandler) toAdmin(item *model.Announcement, now time.Time) adminAnnouncement {
	window := item.Window()
	return adminAnnouncement{
		ID:        item.ID.String(),
		Message:   item.Message,
		Start:     announcement.FormatTimestamp(item.StartsAt, h.location),
		End:       announcement.FormatTimestamp(item.EndsAt, h.location),
		State:     string(window.StateAt(now)),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func (h *AnnouncementHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAnnouncementNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAnnouncementNotFound, "announcement not found")
	case errors.Is(err, service.ErrInvalidAnnouncementReq):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid request")
	case errors.Is(err, service.ErrStoreUnavailable):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStoreUnavailable, "announcement store unavailable")
	default:
		h.logger.Error("announcement operation failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}

package v1

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"groupings-hub/internal/api/response"
	systemlog "groupings-hub/pkg/logger"
)

type SystemHandler struct {
	logStore *systemlog.Store
}

func NewSystemHandler(logStore *systemlog.Store) *SystemHandler {
	return &SystemHandler{logStore: logStore}
}

func RegisterSystemRoutes(group *gin.RouterGroup, logStore *systemlog.Store) {
	handler := NewSystemHandler(logStore)
	system := group.Group("/system")
	system.GET("/logs", handler.QueryLogs)
}

// QueryLogs
// @Summary Query recent log entries
// @Tags system
// @Produce json
// @Param level query string false "log level"
// @Param keyword query string false "keyword"
// @Param from query string false "RFC3339 or yyyy-mm-dd"
// @Param to query string false "RFC3339 or yyyy-mm-dd"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/admin/system/logs [get]
func (h *SystemHandler) QueryLogs(c *gin.Context) {
	if h.logStore == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal, "log service unavailable")
		return
	}

	from, err := parseSystemLogTime(c.Query("from"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid from")
		return
	}
	to, err := parseSystemLogTime(c.Query("to"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid to")
		return
	}

	query := systemlog.Query{
		Level:    strings.TrimSpace(c.Query("level")),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
		From:     from,
		To:       to,
		Page:     parseIntOrDefault(c.Query("page"), 1),
		PageSize: parseIntOrDefault(c.Query("page_size"), 20),
	}
	items, total := h.logStore.Query(query)
	response.Paginated(c, items, query.Page, query.PageSize, total)
}

func parseSystemLogTime(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, nil
	}

	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts.UTC(), nil
	}

	return time.Time{}, errors.New("invalid time")
}

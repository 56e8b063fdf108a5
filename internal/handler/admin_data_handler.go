package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
	"github.com/noah-isme/sma-adp-mobile/pkg/response"
)

type adminDataLoader interface {
	Load(ctx context.Context, force bool) (*models.AdminData, error)
}

// AdminDataHandler serves the aggregated admin lists.
type AdminDataHandler struct {
	loader adminDataLoader
}

// NewAdminDataHandler constructs the handler.
func NewAdminDataHandler(loader adminDataLoader) *AdminDataHandler {
	return &AdminDataHandler{loader: loader}
}

// Get godoc
// @Summary Admin data
// @Description Loads classes, teachers, students, users, events, news and subjects in parallel
// @Tags AdminData
// @Produce json
// @Param refresh query bool false "Bypass the cache"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin-data [get]
func (h *AdminDataHandler) Get(c *gin.Context) {
	force := false
	if raw := c.Query("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "refresh must be a boolean"))
			return
		}
		force = parsed
	}

	data, err := h.loader.Load(c.Request.Context(), force)
	if err != nil {
		response.Error(c, err)
		return
	}

	var meta map[string]interface{}
	if len(data.Failed) > 0 {
		meta = map[string]interface{}{"partial": true, "failed": data.Failed}
	}
	response.JSON(c, http.StatusOK, data, meta)
}

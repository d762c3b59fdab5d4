package flags

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"flipswitch/internal/constants"
	"flipswitch/internal/logger"
	"flipswitch/pkg/errors"
	"flipswitch/pkg/middleware"
)

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		flags := v1.Group("/flags")
		{
			flags.GET("", h.ListFlags)
			flags.POST("", middleware.RequireRole(constants.RoleAdmin), h.CreateFlag)
			flags.GET("/:key", h.GetFlag)
			flags.PUT("/:key", middleware.RequireRole(constants.RoleAdmin), h.UpdateFlag)
			flags.DELETE("/:key", middleware.RequireRole(constants.RoleAdmin), h.DeleteFlag)
		}

		v1.POST("/evaluate", h.Evaluate)

		audit := v1.Group("/audit")
		{
			audit.GET("/logs", h.GetAuditLogs)
		}
	}
}

// ListFlags godoc
// @Summary      List all flags
// @Description  Get every flag in the caller's tenant
// @Tags         flags
// @Accept       json
// @Produce      json
// @Success      200  {array}   Flag
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /flags [get]
func (h *Handler) ListFlags(c *gin.Context) {
	list, err := h.Service.ListFlags(c.Request.Context(), middleware.TenantFrom(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateFlag godoc
// @Summary      Create a flag
// @Description  Create a new flag with the provided data
// @Tags         flags
// @Accept       json
// @Produce      json
// @Param        flag  body      UpsertFlagRequest  true  "Flag data"
// @Success      201   {object}  Flag
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      409   {object}  errors.ErrorResponse
// @Failure      500   {object}  errors.ErrorResponse
// @Router       /flags [post]
func (h *Handler) CreateFlag(c *gin.Context) {
	var req UpsertFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	flag, err := h.Service.CreateFlag(c.Request.Context(), middleware.TenantFrom(c), req, actorFrom(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, flag)
}

// GetFlag godoc
// @Summary      Get a flag by key
// @Tags         flags
// @Accept       json
// @Produce      json
// @Param        key  path      string  true  "Flag key"
// @Success      200  {object}  Flag
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /flags/{key} [get]
func (h *Handler) GetFlag(c *gin.Context) {
	flag, err := h.Service.GetFlag(c.Request.Context(), middleware.TenantFrom(c), c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, flag)
}

// UpdateFlag godoc
// @Summary      Update a flag
// @Description  Replace a flag's configuration, including its full rule set
// @Tags         flags
// @Accept       json
// @Produce      json
// @Param        key   path      string             true  "Flag key"
// @Param        flag  body      UpsertFlagRequest  true  "Updated flag data"
// @Success      200   {object}  Flag
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      404   {object}  errors.ErrorResponse
// @Failure      500   {object}  errors.ErrorResponse
// @Router       /flags/{key} [put]
func (h *Handler) UpdateFlag(c *gin.Context) {
	var req UpsertFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	flag, err := h.Service.UpdateFlag(c.Request.Context(), middleware.TenantFrom(c), c.Param("key"), req, actorFrom(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, flag)
}

// DeleteFlag godoc
// @Summary      Delete a flag
// @Tags         flags
// @Accept       json
// @Produce      json
// @Param        key  path  string  true  "Flag key"
// @Success      204  "No Content"
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /flags/{key} [delete]
func (h *Handler) DeleteFlag(c *gin.Context) {
	err := h.Service.RemoveFlag(c.Request.Context(), middleware.TenantFrom(c), c.Param("key"), actorFrom(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Evaluate godoc
// @Summary      Evaluate a flag
// @Description  Resolve a flag's value for one evaluation unit
// @Tags         evaluation
// @Accept       json
// @Produce      json
// @Param        input  body      EvaluateRequest  true  "Evaluation input"
// @Success      200    {object}  EvaluationResult
// @Failure      400    {object}  errors.ErrorResponse
// @Failure      500    {object}  errors.ErrorResponse
// @Router       /evaluate [post]
func (h *Handler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	if err := ValidateEvaluate(req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.Service.Evaluate(c.Request.Context(), middleware.TenantFrom(c), EvaluationInput{
		FlagKey:    req.Key,
		UnitID:     req.UnitID,
		Attributes: req.Attributes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAuditLogs godoc
// @Summary      Get audit logs
// @Description  Get audit logs for the tenant, optionally filtered by flag key
// @Tags         audit
// @Accept       json
// @Produce      json
// @Param        flag_key  query     string  false  "Filter by flag key"
// @Param        limit     query     int     false  "Maximum number of entries to return (1-100)" default(10)
// @Success      200       {array}   AuditEntry
// @Failure      500       {object}  errors.ErrorResponse
// @Router       /audit/logs [get]
func (h *Handler) GetAuditLogs(c *gin.Context) {
	flagKey := c.Query("flag_key")
	limit := parseLimit(c.Query("limit"))

	entries, err := h.Service.ListAuditEntries(c.Request.Context(), middleware.TenantFrom(c), flagKey, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultAuditPageSize
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 {
		return constants.DefaultAuditPageSize
	}
	if parsed > constants.MaxAuditPageSize {
		return constants.MaxAuditPageSize
	}
	return parsed
}

func actorFrom(c *gin.Context) Actor {
	p := middleware.PrincipalFrom(c)
	return Actor{
		ID:    p.ID,
		Name:  p.Name,
		Email: p.Email,
		Role:  p.Role,
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/platform"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type ProductService interface {
	List(ctx context.Context, filter store.ProductFilter) ([]service.ProductListItem, error)
	Details(ctx context.Context, id int64) (*service.ProductDetails, error)
	CreateInStore(ctx context.Context, req *service.CreateProductRequest) (*models.Product, error)
	Update(ctx context.Context, id int64, req *service.UpdateProductRequest) (*service.UpdateProductResult, error)
}

type SuggestionService interface {
	Apply(ctx context.Context, suggestionID int64) (*service.ApplyResult, error)
	Create(ctx context.Context, req *service.CreateSuggestionRequest) (*models.Suggestion, error)
	ListForProduct(ctx context.Context, productID int64) ([]models.Suggestion, error)
}

type SyncService interface {
	Sync(ctx context.Context, connectionID int64) (*service.SyncResult, error)
	RequestSync(ctx context.Context, connectionID int64) (string, error)
}

type ConnectionService interface {
	List(ctx context.Context) ([]models.StoreConnection, error)
	Create(ctx context.Context, req *service.CreateConnectionRequest) (*models.StoreConnection, error)
	Toggle(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
	CreateCoupon(ctx context.Context, id int64, req *service.CreateCouponRequest) (*platform.CouponResult, error)
	SyncLogs(ctx context.Context, id int64, limit int) ([]models.SyncLog, error)
}

type EventService interface {
	Recent(ctx context.Context, limit int) ([]models.EventView, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups everything the handlers call
type Services struct {
	Products    ProductService
	Suggestions SuggestionService
	Syncs       SyncService
	Connections ConnectionService
	Events      EventService
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, checks map[string]Pinger) *Handler {
	return &Handler{
		svc:    svc,
		checks: checks,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.POST("/products", h.createProduct)
		v1.GET("/products/:id", h.getProduct)
		v1.PUT("/products/:id", h.updateProduct)

		v1.GET("/suggestions", h.listSuggestions)
		v1.POST("/suggestions", h.createSuggestion)
		v1.POST("/suggestions/:id/apply", h.applySuggestion)

		v1.GET("/events", h.listEvents)

		v1.GET("/connections", h.listConnections)
		v1.POST("/connections", h.createConnection)
		v1.DELETE("/connections/:id", h.deleteConnection)
		v1.POST("/connections/:id/toggle", h.toggleConnection)
		v1.POST("/connections/:id/sync", h.syncConnection)
		v1.POST("/connections/:id/sync/async", h.requestSync)
		v1.POST("/connections/:id/coupons", h.createCoupon)
		v1.GET("/connections/:id/logs", h.listSyncLogs)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	filter := store.ProductFilter{
		Channel: models.Channel(c.Query("channel")),
		Search:  c.Query("search"),
	}
	var ok bool
	if filter.ConnectionID, ok = queryInt64(c, "connection_id"); !ok {
		return
	}
	limit, ok := queryInt64(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt64(c, "offset")
	if !ok {
		return
	}
	filter.Limit, filter.Offset = int(limit), int(offset)

	products, err := h.svc.Products.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, "Failed to list products", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.svc.Products.CreateInStore(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Failed to create product", err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	details, err := h.svc.Products.Details(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to get product", err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.svc.Products.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, "Failed to update product", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listSuggestions(c *gin.Context) {
	productID, ok := queryInt64(c, "product_id")
	if !ok {
		return
	}
	if productID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id is required"})
		return
	}

	suggestions, err := h.svc.Suggestions.ListForProduct(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, "Failed to list suggestions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (h *Handler) createSuggestion(c *gin.Context) {
	var req service.CreateSuggestionRequest
	if !bindJSON(c, &req) {
		return
	}

	suggestion, err := h.svc.Suggestions.Create(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Failed to create suggestion", err)
		return
	}
	c.JSON(http.StatusCreated, suggestion)
}

func (h *Handler) applySuggestion(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.svc.Suggestions.Apply(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to apply suggestion", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listEvents(c *gin.Context) {
	limit, ok := queryInt64(c, "limit")
	if !ok {
		return
	}

	events, err := h.svc.Events.Recent(c.Request.Context(), int(limit))
	if err != nil {
		h.writeError(c, "Failed to list events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) listConnections(c *gin.Context) {
	conns, err := h.svc.Connections.List(c.Request.Context())
	if err != nil {
		h.writeError(c, "Failed to list connections", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns})
}

func (h *Handler) createConnection(c *gin.Context) {
	var req service.CreateConnectionRequest
	if !bindJSON(c, &req) {
		return
	}

	conn, err := h.svc.Connections.Create(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Failed to create connection", err)
		return
	}
	c.JSON(http.StatusCreated, conn)
}

func (h *Handler) deleteConnection(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.svc.Connections.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, "Failed to delete connection", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) toggleConnection(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	active, err := h.svc.Connections.Toggle(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to toggle connection", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}

func (h *Handler) syncConnection(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.svc.Syncs.Sync(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to sync connection", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) requestSync(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	eventID, err := h.svc.Syncs.RequestSync(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to request sync", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"connection_id": id, "event_id": eventID})
}

func (h *Handler) createCoupon(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.CreateCouponRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.svc.Connections.CreateCoupon(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, "Failed to create coupon", err)
		return
	}
	if !result.Success {
		c.JSON(http.StatusBadGateway, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) listSyncLogs(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	limit, ok := queryInt64(c, "limit")
	if !ok {
		return
	}

	logs, err := h.svc.Connections.SyncLogs(c.Request.Context(), id, int(limit))
	if err != nil {
		h.writeError(c, "Failed to list sync logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// writeError maps domain errors to HTTP statuses
func (h *Handler) writeError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyApplied), errors.Is(err, models.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrIntegration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

// queryInt64 reads an optional non-negative integer query parameter; absent means 0
func queryInt64(c *gin.Context, key string) (int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + key})
		return 0, false
	}
	return v, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

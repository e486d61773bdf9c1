package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"kitchen-display/internal/display"
	"kitchen-display/internal/models"
	"kitchen-display/internal/service"
	"kitchen-display/internal/util"
	"kitchen-display/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresher forces a full snapshot fetch
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	board     *service.BoardService
	kitchen   *service.KitchenService
	registry  *service.KitchenRegistry
	refresher Refresher
	hub       *ws.Hub
	upgrader  *websocket.Upgrader
}

// NewHandler creates a new HTTP handler
func NewHandler(
	board *service.BoardService,
	kitchen *service.KitchenService,
	registry *service.KitchenRegistry,
	refresher Refresher,
	hub *ws.Hub,
	upgrader *websocket.Upgrader,
) *Handler {
	return &Handler{
		board:     board,
		kitchen:   kitchen,
		registry:  registry,
		refresher: refresher,
		hub:       hub,
		upgrader:  upgrader,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", h.serveWS)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stations", h.listStations)
		v1.GET("/stations/:station", h.getStation)
		v1.PUT("/stations/:station/order", h.setStationOrder)

		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/items/:itemId/status", h.updateItemStatus)
		v1.POST("/orders/:id/ready", h.markAllReady)
		v1.GET("/orders/:id/items/:itemId/gate", h.checkGate)

		v1.GET("/kitchens", h.listKitchens)
		v1.GET("/kitchens/config", h.listKitchenConfigs)
		v1.POST("/kitchens/config", h.addKitchenConfig)
		v1.PUT("/kitchens/config/:id", h.updateKitchenConfig)
		v1.DELETE("/kitchens/config/:id", h.deleteKitchenConfig)
		v1.POST("/kitchens/config/:id/toggle", h.toggleKitchenConfig)

		v1.POST("/refresh", h.refresh)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once a snapshot has been loaded
func (h *Handler) readinessCheck(c *gin.Context) {
	if !h.board.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "waiting for first snapshot",
			"time":   time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) serveWS(c *gin.Context) {
	ws.ServeWS(h.hub, h.upgrader, c.Writer, c.Request)
}

func (h *Handler) listStations(c *gin.Context) {
	c.JSON(http.StatusOK, h.board.Stations())
}

func (h *Handler) getStation(c *gin.Context) {
	c.JSON(http.StatusOK, h.board.Station(models.Station(c.Param("station"))))
}

type stationOrderRequest struct {
	OrderIDs []int64 `json:"order_ids"`
}

func (h *Handler) setStationOrder(c *gin.Context) {
	var req stationOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.board.SetStationOrder(models.Station(c.Param("station")), req.OrderIDs))
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id", "Invalid order ID")
	if !ok {
		return
	}

	detail, err := h.board.Order(orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type itemStatusRequest struct {
	Status          models.ItemStatus `json:"status" binding:"required"`
	ConfirmLowStock bool              `json:"confirm_low_stock"`
}

func (h *Handler) updateItemStatus(c *gin.Context) {
	orderID, ok := parseID(c, "id", "Invalid order ID")
	if !ok {
		return
	}
	itemID, ok := parseID(c, "itemId", "Invalid item ID")
	if !ok {
		return
	}

	var req itemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	res, err := h.kitchen.UpdateItemStatus(c.Request.Context(), orderID, itemID, req.Status, req.ConfirmLowStock)
	if errors.Is(err, service.ErrConfirmationRequired) {
		c.JSON(http.StatusConflict, gin.H{
			"error":    "Low stock confirmation required",
			"details":  err.Error(),
			"advisory": res.Advisory,
		})
		return
	}
	if err != nil {
		writeErrorWithResult(c, err, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) markAllReady(c *gin.Context) {
	orderID, ok := parseID(c, "id", "Invalid order ID")
	if !ok {
		return
	}

	res, err := h.kitchen.MarkAllReady(c.Request.Context(), orderID)
	if err != nil {
		writeErrorWithResult(c, err, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) checkGate(c *gin.Context) {
	orderID, ok := parseID(c, "id", "Invalid order ID")
	if !ok {
		return
	}
	itemID, ok := parseID(c, "itemId", "Invalid item ID")
	if !ok {
		return
	}

	gate, err := h.board.Gate(orderID, itemID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gate)
}

func (h *Handler) listKitchens(c *gin.Context) {
	c.JSON(http.StatusOK, h.board.Kitchens())
}

func (h *Handler) listKitchenConfigs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"kitchens": h.registry.List()})
}

func (h *Handler) addKitchenConfig(c *gin.Context) {
	var req service.KitchenConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	k, err := h.registry.Add(req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, k)
}

func (h *Handler) updateKitchenConfig(c *gin.Context) {
	var req service.KitchenConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	k, err := h.registry.Update(c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

func (h *Handler) deleteKitchenConfig(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) toggleKitchenConfig(c *gin.Context) {
	k, err := h.registry.Toggle(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

func (h *Handler) refresh(c *gin.Context) {
	if err := h.refresher.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Refresh failed, serving last snapshot",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, h.board.Stations())
}

func parseID(c *gin.Context, param, msg string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": msg,
		})
		return 0, false
	}
	return id, true
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound, "Order item not found"
	case errors.Is(err, service.ErrKitchenNotFound):
		return http.StatusNotFound, "Kitchen not found"
	case errors.Is(err, service.ErrBulkInProgress):
		return http.StatusConflict, "Bulk action already running"
	case errors.Is(err, display.ErrInvalidTransition):
		return http.StatusConflict, "Invalid status transition"
	case errors.Is(err, display.ErrUnknownStatus):
		return http.StatusUnprocessableEntity, "Unknown status"
	case errors.Is(err, service.ErrInvalidKitchen):
		return http.StatusUnprocessableEntity, "Invalid kitchen configuration"
	case errors.Is(err, service.ErrMutationRejected):
		return http.StatusBadGateway, "Order service rejected the update"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func writeError(c *gin.Context, err error) {
	code, msg := statusFor(err)
	c.JSON(code, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

// writeErrorWithResult attaches the partial outcome, if any, to the error body
func writeErrorWithResult(c *gin.Context, err error, result interface{}) {
	code, msg := statusFor(err)
	body := gin.H{
		"error":   msg,
		"details": err.Error(),
	}
	switch r := result.(type) {
	case *service.ItemUpdateResult:
		if r != nil {
			body["result"] = r
		}
	case *service.BatchResult:
		if r != nil {
			body["result"] = r
		}
	}
	c.JSON(code, body)
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

package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/service"
	"settlement-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	webhookService *service.WebhookService
	releaseService *service.ReleaseService
	disputeService *service.DisputeService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	paymentService *service.PaymentService,
	webhookService *service.WebhookService,
	releaseService *service.ReleaseService,
	disputeService *service.DisputeService,
) *Handler {
	return &Handler{
		orderService:   orderService,
		paymentService: paymentService,
		webhookService: webhookService,
		releaseService: releaseService,
		disputeService: disputeService,
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

	router.POST("/webhooks/:gateway", h.handleWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/status", h.transitionStatus)

		v1.POST("/payments/create/:orderId", h.createPaymentIntent)
		v1.POST("/payments/:orderId/release", h.buyerRelease)
		v1.PATCH("/payments/:orderId/delivered", h.markDelivered)
		v1.POST("/payments/:orderId/dispute", h.openDispute)

		admin := v1.Group("/admin")
		admin.Use(requireRole("admin"))
		{
			admin.POST("/payments/:orderId/release", h.forceRelease)
			admin.POST("/payments/:orderId/refund", h.adminRefund)
			admin.POST("/disputes/:orderId/resolve", h.resolveDispute)
			admin.GET("/disputes", h.listDisputes)
			admin.GET("/payments/:orderId/payouts", h.listPayouts)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// signatureHeaders maps gateway name to the header carrying the webhook HMAC
var signatureHeaders = map[string]string{
	"razorpay": "X-Razorpay-Signature",
	"stripe":   "Stripe-Signature",
}

// handleWebhook verifies and folds a gateway event. The body is passed to
// the adapter as the exact bytes received; parsing happens after the HMAC
// check.
func (h *Handler) handleWebhook(c *gin.Context) {
	gatewayName := c.Param("gateway")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	header, ok := signatureHeaders[gatewayName]
	if !ok {
		header = "X-Webhook-Signature"
	}
	signature := c.GetHeader(header)

	if err := h.webhookService.Process(c.Request.Context(), gatewayName, body, signature); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// createOrder handles buyer checkout
func (h *Handler) createOrder(c *gin.Context) {
	callerID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing caller identity"})
		return
	}

	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}
	req.BuyerID = callerID

	order, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, items, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// transitionStatus handles seller/admin fulfillment transitions
func (h *Handler) transitionStatus(c *gin.Context) {
	if !hasRole(c, "seller", "admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "seller or admin role required"})
		return
	}

	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.orderService.TransitionStatus(c.Request.Context(), orderID, req.Status); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": req.Status})
}

// createPaymentIntent handles buyer payment intent creation
func (h *Handler) createPaymentIntent(c *gin.Context) {
	buyerID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing caller identity"})
		return
	}
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	resp, err := h.paymentService.CreateIntent(c.Request.Context(), buyerID, orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// buyerRelease handles the buyer's explicit confirm-and-release
func (h *Handler) buyerRelease(c *gin.Context) {
	buyerID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing caller identity"})
		return
	}
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	if err := h.releaseService.BuyerRelease(c.Request.Context(), buyerID, orderID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "payment_status": "released"})
}

// markDelivered starts the auto-release countdown
func (h *Handler) markDelivered(c *gin.Context) {
	if !hasRole(c, "seller", "admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "seller or admin role required"})
		return
	}
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	order, err := h.orderService.MarkDelivered(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":        order.ID,
		"delivered_at":    order.DeliveredAt,
		"auto_release_at": order.AutoReleaseAt,
	})
}

// openDispute handles buyer dispute with evidence
func (h *Handler) openDispute(c *gin.Context) {
	buyerID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing caller identity"})
		return
	}
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	var req struct {
		EvidenceImage string `json:"evidence_image" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "evidence_image is required"})
		return
	}

	if err := h.disputeService.Open(c.Request.Context(), buyerID, orderID, req.EvidenceImage); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "delivery_status": "disputed"})
}

// forceRelease handles administrative release
func (h *Handler) forceRelease(c *gin.Context) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	if err := h.releaseService.ForceRelease(c.Request.Context(), orderID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "payment_status": "released"})
}

// adminRefund handles administrative refund
func (h *Handler) adminRefund(c *gin.Context) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	if err := h.disputeService.Refund(c.Request.Context(), orderID, 0, "refund"); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "payment_status": "refunded"})
}

// resolveDispute handles the unified dispute resolution
func (h *Handler) resolveDispute(c *gin.Context) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action" binding:"required"`
		Amount int64  `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	if err := h.disputeService.Resolve(c.Request.Context(), orderID, req.Action, req.Amount); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "action": req.Action})
}

// listDisputes handles the admin disputes listing
func (h *Handler) listDisputes(c *gin.Context) {
	disputes, err := h.disputeService.ListDisputes(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

// listPayouts handles the admin payout-ledger view
func (h *Handler) listPayouts(c *gin.Context) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	payouts, err := h.releaseService.ListPayouts(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// callerID reads the identity injected by the upstream auth proxy
func callerID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func hasRole(c *gin.Context, roles ...string) bool {
	got := c.GetHeader("X-User-Role")
	for _, role := range roles {
		if got == role {
			return true
		}
	}
	return false
}

func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-User-Role") != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.PublicMessage(err)})
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

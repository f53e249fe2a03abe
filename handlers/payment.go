package handlers

import (
	"context"
	"net/http"

	"marketplace/auth"
	"marketplace/models"
	"marketplace/payment"
	"marketplace/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

type InitiatePaymentRequest struct {
	ServiceID     string            `json:"serviceId" binding:"required,objectid"`
	Amount        float64           `json:"amount" binding:"required,gt=0,decimal2"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"paymentMethod"`
	Notes         map[string]string `json:"notes"`
}

type VerifyPaymentRequest struct {
	OrderID   string `json:"orderId" binding:"required"`
	PaymentID string `json:"paymentId" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type PaymentStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending completed failed"`
}

type PaymentHandler struct {
	*Deps
}

func NewPaymentHandler(d *Deps) *PaymentHandler { return &PaymentHandler{d} }

func (h *PaymentHandler) record(status string) {
	if h.Payments != nil {
		h.Payments.RecordPayment(status)
	}
}

// Initiate creates a pending payment for a registration the caller owns (or any, for admins).
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "Payment")
		return
	}
	if err := models.CheckAmount(req.Amount); err != nil {
		h.fail(c, err, "Payment")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	reg, ok := h.loadRegistration(ctx, c, req.ServiceID)
	if !ok {
		return
	}

	p := &models.Payment{
		ServiceID:     reg.ID,
		ServiceName:   reg.Name,
		UserEmail:     reg.UserEmail,
		Amount:        req.Amount,
		Currency:      firstNonEmpty(req.Currency, h.Currency, models.DefaultCurrency),
		Status:        models.PaymentPending,
		PaymentMethod: firstNonEmpty(req.PaymentMethod, reg.FormData.PaymentMethod),
		Gateway:       h.Gateway.Name(),
		TransactionID: payment.NewTransactionID(h.now()),
		OrderID:       payment.NewOrderID(),
		Notes:         req.Notes,
	}
	if err := p.Validate(); err != nil {
		h.fail(c, err, "Payment")
		return
	}
	if err := h.Store.Payments.Create(ctx, p); err != nil {
		h.fail(c, err, "Payment")
		return
	}
	h.record(p.Status)

	h.Log.WithFields(logrus.Fields{
		"transaction": p.TransactionID,
		"user":        p.UserEmail,
		"amount":      p.Amount,
	}).Info("Payment initiated")
	c.JSON(http.StatusCreated, gin.H{
		"payment": p,
		"orderId": p.OrderID,
		"keyId":   h.Gateway.KeyID,
	})
}

// Verify completes the payment for orderId when the gateway signature matches.
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "Payment")
		return
	}
	if !h.Gateway.Verify(req.OrderID, req.PaymentID, req.Signature) {
		h.Log.WithField("order", req.OrderID).Warn("Payment signature mismatch")
		badRequest(c, "Invalid payment signature")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	existing, err := h.Store.Payments.FindOne(ctx, store.Query{}.Eq("orderId", req.OrderID))
	if err != nil {
		h.fail(c, err, "Payment")
		return
	}
	if !auth.IsOwnerOrAdmin(existing.Owner(), identity(c)) {
		forbidden(c)
		return
	}

	p, err := h.Store.Payments.Update(ctx, existing.ID.Hex(), bson.M{
		"status":      models.PaymentCompleted,
		"paymentId":   req.PaymentID,
		"paymentDate": h.now(),
	})
	if err != nil {
		h.fail(c, err, "Payment")
		return
	}
	h.completed(p)
	c.JSON(http.StatusOK, gin.H{"message": "Payment verified", "payment": p})
}

func (h *PaymentHandler) completed(p *models.Payment) {
	h.record(p.Status)
	h.Log.WithFields(logrus.Fields{"transaction": p.TransactionID, "status": p.Status}).Info("Payment status changed")
	h.publish("payment.status", p)
	h.Notify.Dispatch([]string{p.UserEmail}, notifyPayment(p))
}

func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	var req PaymentStatusRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, "Payment")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	existing, err := h.Store.Payments.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "Payment")
		return
	}
	if !auth.IsOwnerOrAdmin(existing.Owner(), identity(c)) {
		forbidden(c)
		return
	}

	set := bson.M{"status": req.Status}
	if req.Status == models.PaymentCompleted {
		set["paymentDate"] = h.now()
	}
	p, err := h.Store.Payments.Update(ctx, existing.ID.Hex(), set)
	if err != nil {
		h.fail(c, err, "Payment")
		return
	}
	if p.Status != existing.Status {
		h.completed(p)
	}
	c.JSON(http.StatusOK, p)
}

// ForUser lists the caller's payments, or every payment for an admin.
func (h *PaymentHandler) ForUser(c *gin.Context) {
	q, err := h.listQuery(c, "createdAt", "serviceName", "transactionId")
	if err != nil {
		h.fail(c, err, "Payment")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	q, ok := scoped(q, identity(c))
	if !ok {
		c.JSON(http.StatusOK, []models.Payment{})
		return
	}
	payments, err := h.Store.Payments.List(ctx, q)
	if err != nil {
		h.fail(c, err, "Payment")
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (h *PaymentHandler) ForService(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	reg, ok := h.loadRegistration(ctx, c, c.Param("id"))
	if !ok {
		return
	}
	payments, err := h.Store.Payments.List(ctx, store.Query{}.Eq("serviceId", reg.ID).Sort("createdAt", true))
	if err != nil {
		h.fail(c, err, "Payment")
		return
	}
	c.JSON(http.StatusOK, payments)
}

type PaymentStats struct {
	Total     int64   `json:"total"`
	Pending   int64   `json:"pending"`
	Completed int64   `json:"completed"`
	Failed    int64   `json:"failed"`
	Revenue   float64 `json:"revenue"`
}

func (h *PaymentHandler) Stats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var stats PaymentStats
	for status, dst := range map[string]*int64{
		models.PaymentPending: &stats.Pending,
		models.PaymentFailed:  &stats.Failed,
	} {
		n, err := h.Store.Payments.Count(ctx, store.Query{}.Eq("status", status))
		if err != nil {
			h.fail(c, err, "Payment")
			return
		}
		*dst = n
	}
	completed, err := h.Store.Payments.List(ctx, store.Query{}.Eq("status", models.PaymentCompleted))
	if err != nil {
		h.fail(c, err, "Payment")
		return
	}
	stats.Completed = int64(len(completed))
	var cents int64
	for _, p := range completed {
		cents += int64(p.Amount*100 + 0.5)
	}
	stats.Revenue = float64(cents) / 100
	stats.Total = stats.Pending + stats.Completed + stats.Failed
	c.JSON(http.StatusOK, stats)
}

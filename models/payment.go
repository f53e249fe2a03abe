package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"

	DefaultCurrency = "INR"
)

type Payment struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ServiceID     primitive.ObjectID `bson:"serviceId" json:"serviceId"`
	ServiceName   string             `bson:"serviceName" json:"serviceName"`
	UserEmail     string             `bson:"userEmail" json:"userEmail"`
	Amount        float64            `bson:"amount" json:"amount"`
	Currency      string             `bson:"currency" json:"currency"`
	Status        string             `bson:"status" json:"status"`
	PaymentMethod string             `bson:"paymentMethod" json:"paymentMethod"`
	Gateway       string             `bson:"gateway" json:"gateway"`
	PaymentDate   *time.Time         `bson:"paymentDate,omitempty" json:"paymentDate,omitempty"`
	TransactionID string             `bson:"transactionId" json:"transactionId"`
	OrderID       string             `bson:"orderId,omitempty" json:"orderId,omitempty"`
	PaymentID     string             `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	Notes         map[string]string  `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (p *Payment) Validate() error {
	var c checker
	if p.ServiceID.IsZero() {
		c.add("serviceId", "is required")
	}
	c.email("userEmail", p.UserEmail)
	validateAmount(&c, p.Amount)
	c.required("currency", p.Currency)
	c.required("transactionId", p.TransactionID)
	c.oneOf("status", p.Status, PaymentPending, PaymentCompleted, PaymentFailed)
	return c.errs.OrNil()
}

// Owner is the email used for owner-or-admin checks.
func (p *Payment) Owner() string { return p.UserEmail }

// CheckAmount validates a payment amount on its own.
func CheckAmount(amount float64) error {
	var c checker
	validateAmount(&c, amount)
	return c.errs.OrNil()
}

func validateAmount(c *checker, amount float64) {
	if !(amount > 0) {
		c.add("amount", "must be greater than 0")
		return
	}
	if !HasAtMostTwoDecimals(amount) {
		c.add("amount", "must have at most 2 decimal places")
	}
}

package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Gateway signs and verifies gateway callbacks with the shared key secret.
type Gateway struct {
	KeyID     string
	keySecret []byte
}

func NewGateway(keyID, keySecret string) *Gateway {
	return &Gateway{KeyID: keyID, keySecret: []byte(keySecret)}
}

// Name is stored on payments created through this gateway.
func (g *Gateway) Name() string { return "razorpay" }

// Sign returns the hex HMAC-SHA256 of "orderId|paymentId".
func (g *Gateway) Sign(orderID, paymentID string) string {
	h := hmac.New(sha256.New, g.keySecret)
	h.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify compares the signature text exactly, in constant time. Signatures are
// lowercase hex, so an uppercased digit is a mismatch.
func (g *Gateway) Verify(orderID, paymentID, signature string) bool {
	if len(g.keySecret) == 0 || orderID == "" || paymentID == "" {
		return false
	}
	expected := g.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// NewTransactionID is "TXN" + unix millis + a random suffix.
func NewTransactionID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TXN%d%s", now.UnixMilli(), suffix)
}

func NewOrderID() string {
	return "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

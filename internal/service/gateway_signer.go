package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// GatewaySigner implements ports.PaymentSigner for the payment gateway's
// HMAC-SHA256 scheme. Checkout confirmations are signed with the key secret
// over "order_id|payment_id"; webhooks are signed with the webhook secret
// over the raw request body. Signatures are lowercase hex.
type GatewaySigner struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewGatewaySigner creates a GatewaySigner. An empty webhookSecret turns off
// webhook signature checks.
func NewGatewaySigner(keySecret, webhookSecret string) *GatewaySigner {
	return &GatewaySigner{
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(webhookSecret),
	}
}

// SignPayment returns the signature the gateway attaches to a checkout
// confirmation for the order and payment.
func (g *GatewaySigner) SignPayment(orderID, paymentID string) string {
	return macHex(g.keySecret, []byte(orderID+"|"+paymentID))
}

// VerifyPayment checks a checkout confirmation signature in constant time.
func (g *GatewaySigner) VerifyPayment(orderID, paymentID, signature string) bool {
	if len(g.keySecret) == 0 || orderID == "" || paymentID == "" {
		return false
	}
	return hmac.Equal([]byte(g.SignPayment(orderID, paymentID)), []byte(signature))
}

func (g *GatewaySigner) SignWebhook(body []byte) string {
	return macHex(g.webhookSecret, body)
}

// VerifyWebhook checks the signature header against the exact bytes received.
func (g *GatewaySigner) VerifyWebhook(body []byte, signature string) bool {
	if len(g.webhookSecret) == 0 {
		return true
	}
	return hmac.Equal([]byte(g.SignWebhook(body)), []byte(signature))
}

func macHex(secret, msg []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

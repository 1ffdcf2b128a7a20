package settlement

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardjoy/giftbox-service/internal/paystack"
	"github.com/cardjoy/giftbox-service/internal/wallet"
)

const webhookSecret = "sk_test_webhook_secret"

func setupWebhookTest(t *testing.T) (*Handler, *fixture) {
	t.Helper()
	f := setupServiceTest(t)
	// the signature check needs the real HMAC implementation
	f.svc.gateway = paystack.NewClient(webhookSecret, "", nil)
	return NewHandler(f.svc, nil), f
}

func sign(payload []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func seedPendingFunding(t *testing.T, f *fixture, userID uuid.UUID, amount int64, reference string) {
	t.Helper()
	w, err := f.wallets.GetOrCreate(userID)
	require.NoError(t, err)
	_, err = f.wallets.RecordPending(w.ID, wallet.TransactionCredit, decimal.NewFromInt(amount), reference, "Wallet funding via Paystack")
	require.NoError(t, err)
}

func TestPaystackWebhookSettlesCharge(t *testing.T) {
	h, f := setupWebhookTest(t)
	userID := uuid.New()
	seedPendingFunding(t, f, userID, 5000, "fund-wh-1")

	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":"%s","status":"success","amount":500000}}`, "fund-wh-1"))

	req := httptest.NewRequest("POST", "/api/wallet/paystack/webhook", bytes.NewReader(payload))
	req.Header.Set("x-paystack-signature", sign(payload))
	rr := httptest.NewRecorder()

	h.PaystackWebhook(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	w, err := f.wallets.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(5000)))
}

func TestPaystackWebhookRejectsBadSignature(t *testing.T) {
	h, f := setupWebhookTest(t)
	userID := uuid.New()
	seedPendingFunding(t, f, userID, 5000, "fund-wh-2")

	payload := []byte(`{"event":"charge.success","data":{"reference":"fund-wh-2","status":"success","amount":500000}}`)

	req := httptest.NewRequest("POST", "/api/wallet/paystack/webhook", bytes.NewReader(payload))
	req.Header.Set("x-paystack-signature", "forged")
	rr := httptest.NewRecorder()

	h.PaystackWebhook(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// rejected events settle nothing
	w, err := f.wallets.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	entry, err := f.wallets.GetTransactionByReference("fund-wh-2")
	require.NoError(t, err)
	assert.Equal(t, wallet.TransactionPending, entry.Status)
}

func TestPaystackWebhookChargeFailed(t *testing.T) {
	h, f := setupWebhookTest(t)
	userID := uuid.New()
	seedPendingFunding(t, f, userID, 5000, "fund-wh-3")

	payload := []byte(`{"event":"charge.failed","data":{"reference":"fund-wh-3","status":"failed","amount":500000}}`)

	req := httptest.NewRequest("POST", "/api/wallet/paystack/webhook", bytes.NewReader(payload))
	req.Header.Set("x-paystack-signature", sign(payload))
	rr := httptest.NewRecorder()

	h.PaystackWebhook(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	entry, err := f.wallets.GetTransactionByReference("fund-wh-3")
	require.NoError(t, err)
	assert.Equal(t, wallet.TransactionFailed, entry.Status)

	w, err := f.wallets.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
}

func TestPaystackWebhookAcknowledgesMalformedPayload(t *testing.T) {
	h, _ := setupWebhookTest(t)

	payload := []byte(`not json at all`)

	req := httptest.NewRequest("POST", "/api/wallet/paystack/webhook", bytes.NewReader(payload))
	req.Header.Set("x-paystack-signature", sign(payload))
	rr := httptest.NewRecorder()

	h.PaystackWebhook(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPaystackWebhookUnknownEventIsAcknowledged(t *testing.T) {
	h, _ := setupWebhookTest(t)

	payload := []byte(`{"event":"subscription.create","data":{"reference":"whatever"}}`)

	req := httptest.NewRequest("POST", "/api/wallet/paystack/webhook", bytes.NewReader(payload))
	req.Header.Set("x-paystack-signature", sign(payload))
	rr := httptest.NewRecorder()

	h.PaystackWebhook(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

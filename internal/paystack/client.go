package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cardjoy/giftbox-service/pkg/apperrors"
	"github.com/cardjoy/giftbox-service/pkg/logger"
)

// Gateway is the narrow payment-provider contract the settlement engine
// depends on. Amounts cross this boundary in major units; the kobo conversion
// happens inside the implementation only.
type Gateway interface {
	Initialize(ctx context.Context, email string, amount decimal.Decimal, reference, callbackURL string) (*InitResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	VerifySignature(payload []byte, signature string) bool
}

type InitResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

type VerifyResult struct {
	Status   string
	Amount   decimal.Decimal
	Currency string
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type Client struct {
	secret   string
	baseURL  string
	channels []string
	http     *http.Client
}

func NewClient(secret, baseURL string, channels []string) *Client {
	return &Client{
		secret:   secret,
		baseURL:  baseURL,
		channels: channels,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

var minorUnitFactor = decimal.NewFromInt(100)

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitFactor).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(minorUnitFactor)
}

func (c *Client) Initialize(ctx context.Context, email string, amount decimal.Decimal, reference, callbackURL string) (*InitResult, error) {
	payload := map[string]interface{}{
		"email":        email,
		"amount":       toMinorUnits(amount),
		"reference":    reference,
		"currency":     "NGN",
		"channels":     c.channels,
		"callback_url": callbackURL,
	}

	jsonPayload, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/transaction/initialize", bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Error("Paystack initialize error", logger.Fields{
			"status_code": resp.StatusCode,
			"body":        string(respBody),
			"reference":   reference,
		})
		return nil, fmt.Errorf("%w: initialize returned status %d", apperrors.ErrGateway, resp.StatusCode)
	}

	var paystackResp struct {
		Status  bool       `json:"status"`
		Message string     `json:"message"`
		Data    InitResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&paystackResp); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGateway, err)
	}
	if !paystackResp.Status {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrGateway, paystackResp.Message)
	}

	return &paystackResp.Data, nil
}

func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	url := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, reference)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: verify returned status %d", apperrors.ErrGateway, resp.StatusCode)
	}

	var result struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Status   string `json:"status"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGateway, err)
	}
	if !result.Status {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrGateway, result.Message)
	}

	return &VerifyResult{
		Status:   result.Data.Status,
		Amount:   fromMinorUnits(result.Data.Amount),
		Currency: result.Data.Currency,
	}, nil
}

// VerifySignature checks the x-paystack-signature header: HMAC-SHA512 of the
// raw body under the shared secret, hex encoded.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

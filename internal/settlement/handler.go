package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/cardjoy/giftbox-service/internal/giftbox"
	"github.com/cardjoy/giftbox-service/internal/user"
	"github.com/cardjoy/giftbox-service/pkg/apperrors"
	"github.com/cardjoy/giftbox-service/pkg/events"
	"github.com/cardjoy/giftbox-service/pkg/logger"
	"github.com/cardjoy/giftbox-service/pkg/utils"
)

// EventQueue is what the webhook handler needs from the Redis client. A nil
// queue makes the handler settle synchronously instead.
type EventQueue interface {
	PublishEvent(ctx context.Context, event events.GatewayEvent) error
}

type Handler struct {
	Service *Service
	Queue   EventQueue
}

func NewHandler(service *Service, queue EventQueue) *Handler {
	return &Handler{Service: service, Queue: queue}
}

type PurchaseRequest struct {
	Quantity int    `json:"quantity"`
	Pin      string `json:"pin"`
}

func (h *Handler) PurchaseGift(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	giftID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid gift id", nil)
		return
	}

	var req PurchaseRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	result, err := h.Service.PurchaseGift(r.Context(), usr.ID, giftID, req.Quantity, req.Pin)
	if err != nil {
		respondError(w, err, "Purchase failed")
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Gift purchased", result)
}

type AddItemRequest struct {
	GiftID         string `json:"gift_id"`
	CardID         string `json:"card_id,omitempty"`
	WebsiteID      string `json:"website_id,omitempty"`
	Quantity       int    `json:"quantity"`
	RecipientEmail string `json:"recipient_email,omitempty"`
}

func (h *Handler) AddToGiftBox(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req AddItemRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	giftID, err := uuid.Parse(req.GiftID)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid gift id", nil)
		return
	}

	target, err := parseTarget(req.CardID, req.WebsiteID)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Exactly one of card_id or website_id is required", nil)
		return
	}

	box, err := h.Service.AddToGiftBox(r.Context(), usr.ID, giftID, target, req.Quantity, req.RecipientEmail)
	if err != nil {
		respondError(w, err, "Failed to add gift to box")
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Gift added to box", box)
}

type RedeemRequest struct {
	Code string `json:"code"`
}

func (h *Handler) RedeemGiftBox(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		// redeeming without a wallet to credit would forfeit the value
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Log in to redeem a gift box", nil)
		return
	}

	var req RedeemRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	result, err := h.Service.RedeemGiftBox(r.Context(), req.Code, usr.ID)
	if err != nil {
		respondError(w, err, "Redemption failed")
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Gift box redeemed", result)
}

type FundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) FundWallet(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req FundRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	result, err := h.Service.FundWallet(r.Context(), usr.ID, usr.Email, req.Amount)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			utils.BuildErrorResponse(w, http.StatusBadRequest, "Amount is below the minimum funding amount", nil)
			return
		}
		respondError(w, err, "Funding initialization failed")
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Funding initialized", result)
}

func (h *Handler) VerifyFunding(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	if reference == "" {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Reference is required", nil)
		return
	}

	result, err := h.Service.VerifyFunding(r.Context(), reference)
	if err != nil {
		respondError(w, err, "Verification failed")
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Funding status", result)
}

// PaystackWebhook verifies the HMAC-SHA512 signature on the raw body, queues
// the event for the settlement worker, and acknowledges. Internal failures
// are logged and still acknowledged so the provider does not retry-storm;
// only a bad signature is rejected.
func (h *Handler) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("x-paystack-signature")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Webhook: failed to read body", logger.Fields{"error": err.Error()})
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.Service.gateway.VerifySignature(body, signature) {
		logger.Error("Webhook: signature mismatch", logger.Fields{"remote_addr": r.RemoteAddr})
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Status    string `json:"status"`
			Amount    int64  `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Error("Webhook: malformed payload", logger.Fields{"error": err.Error()})
		w.WriteHeader(http.StatusOK)
		return
	}

	event := events.GatewayEvent{
		Event:     payload.Event,
		Reference: payload.Data.Reference,
		Status:    payload.Data.Status,
		Amount:    payload.Data.Amount,
		Timestamp: time.Now(),
	}

	if h.Queue != nil {
		if err := h.Queue.PublishEvent(r.Context(), event); err == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		logger.Error("Webhook: failed to queue event, settling inline", logger.Fields{"reference": event.Reference})
	}

	if err := h.Service.ProcessGatewayEvent(r.Context(), event); err != nil {
		logger.Error("Webhook: settlement failed", logger.Fields{"reference": event.Reference, "error": err.Error()})
	}
	w.WriteHeader(http.StatusOK)
}

func parseTarget(cardID, websiteID string) (giftbox.Target, error) {
	var target giftbox.Target
	if cardID != "" {
		id, err := uuid.Parse(cardID)
		if err != nil {
			return target, err
		}
		target.CardID = &id
	}
	if websiteID != "" {
		id, err := uuid.Parse(websiteID)
		if err != nil {
			return target, err
		}
		target.WebsiteID = &id
	}
	if !target.Valid() {
		return target, apperrors.ErrValidation
	}
	return target, nil
}

func respondError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		utils.BuildErrorResponse(w, http.StatusNotFound, "Not found", nil)
	case errors.Is(err, apperrors.ErrForbidden):
		utils.BuildErrorResponse(w, http.StatusForbidden, "Forbidden", nil)
	case errors.Is(err, apperrors.ErrValidation):
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid input", nil)
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Insufficient balance", nil)
	case errors.Is(err, apperrors.ErrInsufficientStock):
		utils.BuildErrorResponse(w, http.StatusConflict, "Gift is out of stock", nil)
	case errors.Is(err, apperrors.ErrAlreadyRedeemed):
		utils.BuildErrorResponse(w, http.StatusConflict, "Gift box has already been redeemed", nil)
	case errors.Is(err, apperrors.ErrConflict):
		utils.BuildErrorResponse(w, http.StatusConflict, "Conflicting update, please retry", nil)
	case errors.Is(err, apperrors.ErrGateway):
		utils.BuildErrorResponse(w, http.StatusBadGateway, "Payment provider unavailable", nil)
	default:
		utils.BuildErrorResponse(w, http.StatusInternalServerError, fallback, nil)
	}
}

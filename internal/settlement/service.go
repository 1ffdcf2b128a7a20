package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/cardjoy/giftbox-service/internal/card"
	"github.com/cardjoy/giftbox-service/internal/gift"
	"github.com/cardjoy/giftbox-service/internal/giftbox"
	"github.com/cardjoy/giftbox-service/internal/paystack"
	"github.com/cardjoy/giftbox-service/internal/wallet"
	"github.com/cardjoy/giftbox-service/pkg/apperrors"
	"github.com/cardjoy/giftbox-service/pkg/config"
	"github.com/cardjoy/giftbox-service/pkg/events"
	"github.com/cardjoy/giftbox-service/pkg/id"
	"github.com/cardjoy/giftbox-service/pkg/logger"
)

// Service orchestrates the money-moving flows: gift purchase, box attachment,
// redemption, and wallet funding. Every multi-aggregate mutation runs inside
// one database transaction.
type Service struct {
	db      *gorm.DB
	wallets wallet.Repository
	gifts   gift.Repository
	boxes   giftbox.Repository
	cards   card.Repository
	gateway paystack.Gateway
	cfg     config.Config
}

func NewService(db *gorm.DB, wallets wallet.Repository, gifts gift.Repository, boxes giftbox.Repository, cards card.Repository, gateway paystack.Gateway, cfg config.Config) *Service {
	return &Service{
		db:      db,
		wallets: wallets,
		gifts:   gifts,
		boxes:   boxes,
		cards:   cards,
		gateway: gateway,
		cfg:     cfg,
	}
}

type PurchaseResult struct {
	Gift       *gift.Gift      `json:"gift"`
	TotalPrice decimal.Decimal `json:"total_price"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// PurchaseGift charges the buyer's wallet and takes stock, both in one
// transaction. Stock is reserved before the debit so a charge can never
// outlive its reservation.
func (s *Service) PurchaseGift(ctx context.Context, userID uuid.UUID, giftID uuid.UUID, quantity int, pin string) (*PurchaseResult, error) {
	if quantity < 1 {
		return nil, apperrors.ErrValidation
	}

	g, err := s.gifts.GetActive(giftID)
	if err != nil {
		return nil, err
	}

	w, err := s.wallets.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}
	if err := verifyPin(w, pin); err != nil {
		return nil, err
	}

	totalPrice := g.Price.Mul(decimal.NewFromInt(int64(quantity)))
	reference := id.NewReference("gift")
	description := fmt.Sprintf("Purchase of %d x %s", quantity, g.Name)

	var updated *wallet.Wallet
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.gifts.WithTx(tx).DecrementStock(giftID, quantity); err != nil {
			return err
		}
		w, err := s.wallets.WithTx(tx).DebitImmediate(userID, totalPrice, reference, description)
		if err != nil {
			return err
		}
		updated = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	g, err = s.gifts.Get(giftID)
	if err != nil {
		return nil, err
	}

	logger.Info("Gift purchased", logger.Fields{
		"user_id":   userID.String(),
		"gift_id":   giftID.String(),
		"quantity":  quantity,
		"total":     totalPrice.String(),
		"reference": reference,
	})

	return &PurchaseResult{Gift: g, TotalPrice: totalPrice, NewBalance: updated.Balance}, nil
}

// AddToGiftBox attaches a gift to the sender's open box for the card or
// website, creating the box (and its redemption code) on first use. It does
// not charge the wallet; purchase is a separate operation.
func (s *Service) AddToGiftBox(ctx context.Context, senderID uuid.UUID, giftID uuid.UUID, target giftbox.Target, quantity int, recipientEmail string) (*giftbox.GiftBox, error) {
	if !target.Valid() || quantity < 1 {
		return nil, apperrors.ErrValidation
	}

	owns, err := s.ownsTarget(senderID, target)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, apperrors.ErrForbidden
	}

	g, err := s.gifts.GetActive(giftID)
	if err != nil {
		return nil, err
	}

	var boxID uuid.UUID
	err = s.db.Transaction(func(tx *gorm.DB) error {
		boxes := s.boxes.WithTx(tx)

		box, created, err := boxes.FindOrCreateOpen(senderID, target, recipientEmail)
		if err != nil {
			return err
		}
		if created {
			if err := s.linkTarget(tx, target, box.ID); err != nil {
				return err
			}
		}

		if err := boxes.MergeItem(box.ID, giftID, quantity, g.Value); err != nil {
			return err
		}

		boxID = box.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.boxes.GetByID(boxID)
}

type RedeemResult struct {
	GiftBox          *giftbox.GiftBox `json:"gift_box"`
	TotalValue       decimal.Decimal  `json:"total_value"`
	CreditedToWallet bool             `json:"credited_to_wallet"`
}

// RedeemGiftBox flips the box to REDEEMED and credits the redeemer's wallet
// with the boxed value, atomically. A lost race or a retry surfaces as
// ErrAlreadyRedeemed and moves no money.
func (s *Service) RedeemGiftBox(ctx context.Context, code string, redeemerID uuid.UUID) (*RedeemResult, error) {
	if code == "" {
		return nil, apperrors.ErrValidation
	}

	var result RedeemResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		box, err := s.boxes.WithTx(tx).Redeem(code, redeemerID, time.Now())
		if err != nil {
			return err
		}

		total := box.TotalValue()
		credited := false
		if total.GreaterThan(decimal.Zero) {
			reference := "redeem-" + code
			description := fmt.Sprintf("Gift box %s redemption", code)
			if _, err := s.wallets.WithTx(tx).CreditImmediate(redeemerID, total, reference, description); err != nil {
				return err
			}
			credited = true
		}

		result = RedeemResult{GiftBox: box, TotalValue: total, CreditedToWallet: credited}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Gift box redeemed", logger.Fields{
		"code":        code,
		"redeemer":    redeemerID.String(),
		"total_value": result.TotalValue.String(),
	})

	return &result, nil
}

type FundResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// FundWallet starts an asynchronous top-up: the gateway is initialized first,
// and the pending ledger entry is only recorded once Paystack has accepted
// the reference. A gateway failure therefore leaves no dangling pending row.
func (s *Service) FundWallet(ctx context.Context, userID uuid.UUID, email string, amount decimal.Decimal) (*FundResult, error) {
	if amount.LessThan(s.cfg.MinFundingAmount) {
		return nil, apperrors.ErrValidation
	}

	w, err := s.wallets.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}

	reference := id.NewReference("fund")
	callbackURL := fmt.Sprintf("%s/api/wallet/fund/callback", s.cfg.Host)

	initRes, err := s.gateway.Initialize(ctx, email, amount, reference, callbackURL)
	if err != nil {
		return nil, err
	}

	if _, err := s.wallets.RecordPending(w.ID, wallet.TransactionCredit, amount, reference, "Wallet funding via Paystack"); err != nil {
		return nil, err
	}

	return &FundResult{AuthorizationURL: initRes.AuthorizationURL, Reference: reference}, nil
}

type VerifyFundingResult struct {
	Reference      string          `json:"reference"`
	Status         string          `json:"status"`
	Balance        decimal.Decimal `json:"balance"`
	AmountCredited decimal.Decimal `json:"amount_credited"`
}

// VerifyFunding is the caller-polled settlement path. Whichever of this and
// the webhook runs first completes the transaction; the other is a no-op.
func (s *Service) VerifyFunding(ctx context.Context, reference string) (*VerifyFundingResult, error) {
	entry, err := s.wallets.GetTransactionByReference(reference)
	if err != nil {
		return nil, err
	}

	if entry.Status == wallet.TransactionPending {
		verification, err := s.gateway.Verify(ctx, reference)
		if err != nil {
			return nil, err
		}

		switch verification.Status {
		case paystack.StatusSuccess:
			if !verification.Amount.Equal(entry.Amount) {
				logger.Warn("Funding amount mismatch on verify", logger.Fields{
					"reference": reference,
					"expected":  entry.Amount.String(),
					"reported":  verification.Amount.String(),
				})
			}
			entry, err = s.wallets.Settle(reference, wallet.TransactionCompleted)
		case paystack.StatusFailed:
			entry, err = s.wallets.Settle(reference, wallet.TransactionFailed)
		}
		if err != nil {
			return nil, err
		}
	}

	w, err := s.wallets.GetByID(entry.WalletID)
	if err != nil {
		return nil, err
	}

	credited := decimal.Zero
	if entry.Status == wallet.TransactionCompleted {
		credited = entry.Amount
	}

	return &VerifyFundingResult{
		Reference:      reference,
		Status:         string(entry.Status),
		Balance:        w.Balance,
		AmountCredited: credited,
	}, nil
}

// ProcessGatewayEvent settles a verified webhook event. Unknown references
// and repeats are tolerated; settlement is idempotent.
func (s *Service) ProcessGatewayEvent(ctx context.Context, event events.GatewayEvent) error {
	switch event.Event {
	case "charge.success":
		entry, err := s.wallets.GetTransactionByReference(event.Reference)
		if err != nil {
			return err
		}
		reported := decimal.NewFromInt(event.Amount).Div(decimal.NewFromInt(100))
		if !reported.Equal(entry.Amount) {
			logger.Warn("Funding amount mismatch on webhook", logger.Fields{
				"reference": event.Reference,
				"expected":  entry.Amount.String(),
				"reported":  reported.String(),
			})
		}
		_, err = s.wallets.Settle(event.Reference, wallet.TransactionCompleted)
		return err
	case "charge.failed":
		_, err := s.wallets.Settle(event.Reference, wallet.TransactionFailed)
		return err
	default:
		logger.Warn("Unknown gateway event", logger.Fields{"event": event.Event, "reference": event.Reference})
		return nil
	}
}

// ReconcilePending sweeps funding transactions stuck in PENDING past the
// configured age, re-verifies each with the gateway, and settles it.
func (s *Service) ReconcilePending(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(s.cfg.PendingSweepAge) * time.Minute)
	stale, err := s.wallets.ListStalePending(cutoff, 100)
	if err != nil {
		logger.Error("Pending sweep: failed to list transactions", logger.Fields{"error": err.Error()})
		return
	}

	for _, entry := range stale {
		verification, err := s.gateway.Verify(ctx, entry.Reference)
		if err != nil {
			logger.Warn("Pending sweep: verify failed, will retry next sweep", logger.Fields{
				"reference": entry.Reference,
				"error":     err.Error(),
			})
			continue
		}

		outcome := wallet.TransactionFailed
		if verification.Status == paystack.StatusSuccess {
			outcome = wallet.TransactionCompleted
		}
		if _, err := s.wallets.Settle(entry.Reference, outcome); err != nil {
			logger.Error("Pending sweep: settle failed", logger.Fields{
				"reference": entry.Reference,
				"outcome":   string(outcome),
				"error":     err.Error(),
			})
			continue
		}
		logger.Info("Pending sweep: transaction reconciled", logger.Fields{
			"reference": entry.Reference,
			"outcome":   string(outcome),
		})
	}
}

func (s *Service) ownsTarget(senderID uuid.UUID, target giftbox.Target) (bool, error) {
	if target.CardID != nil {
		return s.cards.OwnsCard(*target.CardID, senderID)
	}
	return s.cards.OwnsWebsite(*target.WebsiteID, senderID)
}

func (s *Service) linkTarget(tx *gorm.DB, target giftbox.Target, boxID uuid.UUID) error {
	cards := s.cards.WithTx(tx)
	if target.CardID != nil {
		return cards.LinkCardGiftBox(*target.CardID, boxID)
	}
	return cards.LinkWebsiteGiftBox(*target.WebsiteID, boxID)
}

func verifyPin(w *wallet.Wallet, pin string) error {
	if w.PinHash == "" {
		return apperrors.ErrForbidden
	}
	if err := bcrypt.CompareHashAndPassword([]byte(w.PinHash), []byte(pin)); err != nil {
		return apperrors.ErrForbidden
	}
	return nil
}

package settlement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
)

// fakeGateway records calls and returns canned results, no HTTP involved.
type fakeGateway struct {
	initCalls    int
	initErr      error
	verifyStatus string
	verifyAmount decimal.Decimal
	verifyErr    error
}

func (f *fakeGateway) Initialize(ctx context.Context, email string, amount decimal.Decimal, reference, callbackURL string) (*paystack.InitResult, error) {
	f.initCalls++
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &paystack.InitResult{
		AuthorizationURL: "https://checkout.paystack.com/" + reference,
		Reference:        reference,
	}, nil
}

func (f *fakeGateway) Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &paystack.VerifyResult{Status: f.verifyStatus, Amount: f.verifyAmount, Currency: "NGN"}, nil
}

func (f *fakeGateway) VerifySignature(payload []byte, signature string) bool {
	return true
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	gateway *fakeGateway
	wallets wallet.Repository
	gifts   gift.Repository
	boxes   giftbox.Repository
	cards   card.Repository
}

func setupServiceTest(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:settlement_svc_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	err = db.AutoMigrate(
		&card.Card{}, &card.Website{},
		&wallet.Wallet{}, &wallet.Transaction{},
		&gift.Gift{},
		&giftbox.GiftBox{}, &giftbox.GiftBoxItem{},
	)
	if err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	gateway := &fakeGateway{}
	cfg := config.Config{
		Host:             "http://localhost:8080",
		MinFundingAmount: decimal.NewFromInt(100),
		PendingSweepAge:  30,
	}

	f := &fixture{
		db:      db,
		gateway: gateway,
		wallets: wallet.NewRepository(db),
		gifts:   gift.NewRepository(db),
		boxes:   giftbox.NewRepository(db),
		cards:   card.NewRepository(db),
	}
	f.svc = NewService(db, f.wallets, f.gifts, f.boxes, f.cards, gateway, cfg)
	return f
}

func (f *fixture) seedWallet(t *testing.T, userID uuid.UUID, balance int64, pin string) {
	t.Helper()
	if balance > 0 {
		_, err := f.wallets.CreditImmediate(userID, decimal.NewFromInt(balance), "seed-"+uuid.NewString(), "seed")
		require.NoError(t, err)
	} else {
		_, err := f.wallets.GetOrCreate(userID)
		require.NoError(t, err)
	}
	if pin != "" {
		w, err := f.wallets.GetByUserID(userID)
		require.NoError(t, err)
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		require.NoError(t, err)
		require.NoError(t, f.wallets.SetPin(w.ID, string(hash)))
	}
}

func (f *fixture) seedGift(t *testing.T, value, price int64, stock *int) *gift.Gift {
	t.Helper()
	g := &gift.Gift{
		Name:   "Dinner Voucher",
		Type:   gift.TypeVoucher,
		Value:  decimal.NewFromInt(value),
		Price:  decimal.NewFromInt(price),
		Stock:  stock,
		Active: true,
	}
	require.NoError(t, f.gifts.Create(g))
	return g
}

func (f *fixture) seedCard(t *testing.T, ownerID uuid.UUID) *card.Card {
	t.Helper()
	c := &card.Card{OwnerID: ownerID, Title: "Happy Birthday"}
	require.NoError(t, f.cards.CreateCard(c))
	return c
}

func intPtr(n int) *int { return &n }

func TestPurchaseGiftDebitsWalletAndStock(t *testing.T) {
	f := setupServiceTest(t)
	buyer := uuid.New()
	f.seedWallet(t, buyer, 1000, "1234")
	g := f.seedGift(t, 400, 500, intPtr(3))

	result, err := f.svc.PurchaseGift(context.Background(), buyer, g.ID, 1, "1234")
	require.NoError(t, err)
	assert.True(t, result.TotalPrice.Equal(decimal.NewFromInt(500)))
	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(500)))
	require.NotNil(t, result.Gift.Stock)
	assert.Equal(t, 2, *result.Gift.Stock)
}

func TestPurchaseGiftInsufficientFundsLeavesStock(t *testing.T) {
	f := setupServiceTest(t)
	buyer := uuid.New()
	f.seedWallet(t, buyer, 100, "1234")
	g := f.seedGift(t, 400, 500, intPtr(3))

	_, err := f.svc.PurchaseGift(context.Background(), buyer, g.ID, 1, "1234")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	// the failed debit must roll the stock reservation back
	got, err := f.gifts.Get(g.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, *got.Stock)

	w, err := f.wallets.GetByUserID(buyer)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(100)))
}

func TestPurchaseGiftOutOfStock(t *testing.T) {
	f := setupServiceTest(t)
	buyer := uuid.New()
	f.seedWallet(t, buyer, 10000, "1234")
	g := f.seedGift(t, 400, 500, intPtr(1))

	_, err := f.svc.PurchaseGift(context.Background(), buyer, g.ID, 2, "1234")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	w, err := f.wallets.GetByUserID(buyer)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(10000)))
}

func TestPurchaseGiftWrongPin(t *testing.T) {
	f := setupServiceTest(t)
	buyer := uuid.New()
	f.seedWallet(t, buyer, 1000, "1234")
	g := f.seedGift(t, 400, 500, nil)

	_, err := f.svc.PurchaseGift(context.Background(), buyer, g.ID, 1, "9999")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestPurchaseGiftWithoutPinSet(t *testing.T) {
	f := setupServiceTest(t)
	buyer := uuid.New()
	f.seedWallet(t, buyer, 1000, "")
	g := f.seedGift(t, 400, 500, nil)

	_, err := f.svc.PurchaseGift(context.Background(), buyer, g.ID, 1, "1234")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestAddToGiftBoxCreatesAndLinks(t *testing.T) {
	f := setupServiceTest(t)
	sender := uuid.New()
	c := f.seedCard(t, sender)
	g := f.seedGift(t, 200, 250, nil)

	target := giftbox.Target{CardID: &c.ID}
	box, err := f.svc.AddToGiftBox(context.Background(), sender, g.ID, target, 2, "friend@example.com")
	require.NoError(t, err)
	require.Len(t, box.Items, 1)
	assert.Equal(t, 2, box.Items[0].Quantity)
	assert.True(t, box.TotalValue().Equal(decimal.NewFromInt(400)))

	linked, err := f.cards.GetCard(c.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.GiftBoxID)
	assert.Equal(t, box.ID, *linked.GiftBoxID)

	// second add reuses the open box
	again, err := f.svc.AddToGiftBox(context.Background(), sender, g.ID, target, 1, "friend@example.com")
	require.NoError(t, err)
	assert.Equal(t, box.ID, again.ID)
	require.Len(t, again.Items, 1)
	assert.Equal(t, 3, again.Items[0].Quantity)
}

func TestAddToGiftBoxForeignCard(t *testing.T) {
	f := setupServiceTest(t)
	owner := uuid.New()
	intruder := uuid.New()
	c := f.seedCard(t, owner)
	g := f.seedGift(t, 200, 250, nil)

	_, err := f.svc.AddToGiftBox(context.Background(), intruder, g.ID, giftbox.Target{CardID: &c.ID}, 1, "")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestRedeemGiftBoxCreditsWallet(t *testing.T) {
	f := setupServiceTest(t)
	sender := uuid.New()
	redeemer := uuid.New()
	c := f.seedCard(t, sender)
	voucher := f.seedGift(t, 200, 250, nil)
	item := f.seedGift(t, 300, 350, nil)

	target := giftbox.Target{CardID: &c.ID}
	_, err := f.svc.AddToGiftBox(context.Background(), sender, voucher.ID, target, 2, "")
	require.NoError(t, err)
	box, err := f.svc.AddToGiftBox(context.Background(), sender, item.ID, target, 1, "")
	require.NoError(t, err)

	result, err := f.svc.RedeemGiftBox(context.Background(), box.Code, redeemer)
	require.NoError(t, err)
	assert.True(t, result.TotalValue.Equal(decimal.NewFromInt(700)))
	assert.True(t, result.CreditedToWallet)
	assert.True(t, result.GiftBox.IsRedeemed)

	w, err := f.wallets.GetByUserID(redeemer)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(700)))
}

func TestRedeemGiftBoxTwiceCreditsOnce(t *testing.T) {
	f := setupServiceTest(t)
	sender := uuid.New()
	redeemer := uuid.New()
	c := f.seedCard(t, sender)
	g := f.seedGift(t, 500, 600, nil)

	box, err := f.svc.AddToGiftBox(context.Background(), sender, g.ID, giftbox.Target{CardID: &c.ID}, 1, "")
	require.NoError(t, err)

	_, err = f.svc.RedeemGiftBox(context.Background(), box.Code, redeemer)
	require.NoError(t, err)

	_, err = f.svc.RedeemGiftBox(context.Background(), box.Code, redeemer)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyRedeemed)

	w, err := f.wallets.GetByUserID(redeemer)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(500)))
}

func TestRedeemEmptyBoxCreditsNothing(t *testing.T) {
	f := setupServiceTest(t)
	sender := uuid.New()
	redeemer := uuid.New()

	box, _, err := f.boxes.FindOrCreateOpen(sender, giftbox.Target{CardID: &f.seedCard(t, sender).ID}, "")
	require.NoError(t, err)

	result, err := f.svc.RedeemGiftBox(context.Background(), box.Code, redeemer)
	require.NoError(t, err)
	assert.True(t, result.TotalValue.IsZero())
	assert.False(t, result.CreditedToWallet)
}

func TestFundWalletRecordsPendingAfterGateway(t *testing.T) {
	f := setupServiceTest(t)
	userID := uuid.New()

	result, err := f.svc.FundWallet(context.Background(), userID, "user@example.com", decimal.NewFromInt(5000))
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.initCalls)
	assert.Contains(t, result.AuthorizationURL, result.Reference)

	entry, err := f.wallets.GetTransactionByReference(result.Reference)
	require.NoError(t, err)
	assert.Equal(t, wallet.TransactionPending, entry.Status)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(5000)))

	w, err := f.wallets.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
}

func TestFundWalletBelowMinimum(t *testing.T) {
	f := setupServiceTest(t)

	_, err := f.svc.FundWallet(context.Background(), uuid.New(), "user@example.com", decimal.NewFromInt(50))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, f.gateway.initCalls)
}

func TestFundWalletGatewayFailureLeavesNoPending(t *testing.T) {
	f := setupServiceTest(t)
	f.gateway.initErr = apperrors.ErrGateway
	userID := uuid.New()

	_, err := f.svc.FundWallet(context.Background(), userID, "user@example.com", decimal.NewFromInt(5000))
	assert.ErrorIs(t, err, apperrors.ErrGateway)

	w, err := f.wallets.GetOrCreate(userID)
	require.NoError(t, err)
	count, err := f.wallets.CountTransactions(w.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestVerifyFundingSettlesSuccess(t *testing.T) {
	f := setupServiceTest(t)
	userID := uuid.New()

	result, err := f.svc.FundWallet(context.Background(), userID, "user@example.com", decimal.NewFromInt(5000))
	require.NoError(t, err)

	f.gateway.verifyStatus = paystack.StatusSuccess
	f.gateway.verifyAmount = decimal.NewFromInt(5000)

	verification, err := f.svc.VerifyFunding(context.Background(), result.Reference)
	require.NoError(t, err)
	assert.Equal(t, string(wallet.TransactionCompleted), verification.Status)
	assert.True(t, verification.Balance.Equal(decimal.NewFromInt(5000)))
	assert.True(t, verification.AmountCredited.Equal(decimal.NewFromInt(5000)))

	// polling again settles nothing further
	verification, err = f.svc.VerifyFunding(context.Background(), result.Reference)
	require.NoError(t, err)
	assert.True(t, verification.Balance.Equal(decimal.NewFromInt(5000)))
}

func TestVerifyFundingSettlesFailure(t *testing.T) {
	f := setupServiceTest(t)
	userID := uuid.New()

	result, err := f.svc.FundWallet(context.Background(), userID, "user@example.com", decimal.NewFromInt(5000))
	require.NoError(t, err)

	f.gateway.verifyStatus = paystack.StatusFailed

	verification, err := f.svc.VerifyFunding(context.Background(), result.Reference)
	require.NoError(t, err)
	assert.Equal(t, string(wallet.TransactionFailed), verification.Status)
	assert.True(t, verification.Balance.IsZero())
	assert.True(t, verification.AmountCredited.IsZero())
}

func TestProcessGatewayEventChargeSuccess(t *testing.T) {
	f := setupServiceTest(t)
	userID := uuid.New()

	result, err := f.svc.FundWallet(context.Background(), userID, "user@example.com", decimal.NewFromInt(5000))
	require.NoError(t, err)

	event := events.GatewayEvent{
		Event:     "charge.success",
		Reference: result.Reference,
		Status:    paystack.StatusSuccess,
		Amount:    500000,
		Timestamp: time.Now(),
	}
	require.NoError(t, f.svc.ProcessGatewayEvent(context.Background(), event))

	w, err := f.wallets.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(5000)))

	// the webhook is delivered at least once, repeats must not double-credit
	require.NoError(t, f.svc.ProcessGatewayEvent(context.Background(), event))
	w, err = f.wallets.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(5000)))
}

func TestReconcilePendingSettlesStaleTransactions(t *testing.T) {
	f := setupServiceTest(t)
	userID := uuid.New()

	result, err := f.svc.FundWallet(context.Background(), userID, "user@example.com", decimal.NewFromInt(2000))
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.db.Model(&wallet.Transaction{}).
		Where("reference = ?", result.Reference).
		UpdateColumn("created_at", old).Error)

	f.gateway.verifyStatus = paystack.StatusSuccess
	f.gateway.verifyAmount = decimal.NewFromInt(2000)

	f.svc.ReconcilePending(context.Background())

	w, err := f.wallets.GetByUserID(userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(2000)))
}

package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mheravagimyan/real-estate-ledger/internal/adapter/repository/memory"
	"github.com/mheravagimyan/real-estate-ledger/internal/adapter/settlement"
	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/domain"
)

const (
	operator = domain.Address("operator")
	alice    = domain.Address("alice")
	bob      = domain.Address("bob")
	carol    = domain.Address("carol")
)

type fixture struct {
	ledger  *Ledger
	journal *memory.EventJournal
	bank    *settlement.MemoryBank
}

func newFixture(t *testing.T, feeBps uint32) *fixture {
	t.Helper()
	journal := memory.NewEventJournal()
	bank := settlement.NewMemoryBank()
	led, err := New(journal, bank, operator, feeBps, nil)
	require.NoError(t, err)
	return &fixture{ledger: led, journal: journal, bank: bank}
}

func (f *fixture) fund(t *testing.T, addr domain.Address, amount uint64) {
	t.Helper()
	require.NoError(t, f.bank.Credit(context.Background(), addr, amount))
}

func (f *fixture) balance(t *testing.T, addr domain.Address) uint64 {
	t.Helper()
	bal, err := f.bank.BalanceOf(context.Background(), addr)
	require.NoError(t, err)
	return bal
}

func TestNew_Validation(t *testing.T) {
	journal := memory.NewEventJournal()
	bank := settlement.NewMemoryBank()

	_, err := New(nil, bank, operator, 100, nil)
	assert.Error(t, err)

	_, err = New(journal, nil, operator, 100, nil)
	assert.Error(t, err)

	_, err = New(journal, bank, "", 100, nil)
	assert.Error(t, err)

	_, err = New(journal, bank, operator, domain.MaxFeeBps+1, nil)
	assert.ErrorIs(t, err, domain.ErrFeeTooHigh)

	led, err := New(journal, bank, operator, domain.MaxFeeBps, nil)
	require.NoError(t, err)
	assert.Equal(t, operator, led.Operator())
}

func TestListProperty_RegistersAndLists(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	hash := domain.HashProperty("Baker Street 221B", 120)

	events, err := f.ledger.ListProperty(ctx, alice, hash, 200)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventPropertyRegistered, events[0].Type)
	assert.Equal(t, alice, events[0].Owner)
	assert.Equal(t, domain.EventPropertyListed, events[1].Type)
	assert.Equal(t, uint64(200), events[1].Price)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(2), events[1].Seq)

	owner, ok := f.ledger.OwnerOf(hash)
	require.True(t, ok)
	assert.Equal(t, alice, owner)

	listing, registered := f.ledger.ListingOf(hash)
	require.True(t, registered)
	assert.True(t, listing.ForSale)
	assert.Equal(t, uint64(200), listing.Price)

	assert.Equal(t, []domain.Hash{hash}, f.ledger.PropertiesOf(alice))
}

func TestListProperty_Rejections(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	hash := domain.HashProperty("Abay Avenue 52", 85)

	_, err := f.ledger.ListProperty(ctx, alice, hash, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = f.ledger.ListProperty(ctx, alice, domain.Hash{}, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidHash)

	_, err = f.ledger.ListProperty(ctx, "", hash, 100)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.ledger.ListProperty(ctx, alice, hash, 100)
	require.NoError(t, err)

	// Already for sale, regardless of who asks.
	_, err = f.ledger.ListProperty(ctx, alice, hash, 150)
	assert.ErrorIs(t, err, domain.ErrAlreadyForSale)
	_, err = f.ledger.ListProperty(ctx, bob, hash, 150)
	assert.ErrorIs(t, err, domain.ErrAlreadyForSale)

	// After cancellation only the owner may re-list.
	_, err = f.ledger.CancelListing(ctx, alice, hash)
	require.NoError(t, err)
	_, err = f.ledger.ListProperty(ctx, bob, hash, 150)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	events, err := f.ledger.ListProperty(ctx, alice, hash, 150)
	require.NoError(t, err)
	// Re-listing an already registered property emits no registration event.
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPropertyListed, events[0].Type)
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	hash := domain.HashProperty("Dostyk 5", 60)

	_, err := f.ledger.CancelListing(ctx, alice, hash)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = f.ledger.ListProperty(ctx, alice, hash, 300)
	require.NoError(t, err)

	_, err = f.ledger.CancelListing(ctx, bob, hash)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	events, err := f.ledger.CancelListing(ctx, alice, hash)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventListingCancelled, events[0].Type)

	// Cancelled reads back exactly like never-listed; registration is the
	// only remaining trace.
	listing, registered := f.ledger.ListingOf(hash)
	require.True(t, registered)
	assert.Equal(t, domain.Listing{}, listing)

	_, err = f.ledger.CancelListing(ctx, alice, hash)
	assert.ErrorIs(t, err, domain.ErrNotListed)

	// Ownership is untouched by cancellation.
	owner, ok := f.ledger.OwnerOf(hash)
	require.True(t, ok)
	assert.Equal(t, alice, owner)
}

func TestBuyProperty_HappyPath(t *testing.T) {
	f := newFixture(t, 100) // 1%
	ctx := context.Background()
	hash := domain.HashProperty("Baker Street 221B", 120)

	_, err := f.ledger.ListProperty(ctx, alice, hash, 200)
	require.NoError(t, err)
	f.fund(t, bob, 500)

	events, err := f.ledger.BuyProperty(ctx, bob, hash, 200)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.EventPropertySold, ev.Type)
	assert.Equal(t, alice, ev.Owner)
	assert.Equal(t, bob, ev.Buyer)
	assert.Equal(t, uint64(200), ev.Price)
	assert.Equal(t, uint64(2), ev.Fee)

	owner, ok := f.ledger.OwnerOf(hash)
	require.True(t, ok)
	assert.Equal(t, bob, owner)

	listing, _ := f.ledger.ListingOf(hash)
	assert.False(t, listing.ForSale)

	assert.Empty(t, f.ledger.PropertiesOf(alice))
	assert.Equal(t, []domain.Hash{hash}, f.ledger.PropertiesOf(bob))

	// 200 leaves the buyer, 198 reaches the seller, 2 accrues as fees.
	assert.Equal(t, uint64(300), f.balance(t, bob))
	assert.Equal(t, uint64(198), f.balance(t, alice))
	assert.Equal(t, uint64(2), f.ledger.Fees().Accrued)
}

func TestBuyProperty_Rejections(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	hash := domain.HashProperty("Abay Avenue 52", 85)

	_, err := f.ledger.BuyProperty(ctx, bob, hash, 100)
	assert.ErrorIs(t, err, domain.ErrNotListed)

	_, err = f.ledger.ListProperty(ctx, alice, hash, 100)
	require.NoError(t, err)

	_, err = f.ledger.BuyProperty(ctx, alice, hash, 100)
	assert.ErrorIs(t, err, domain.ErrSellerIsBuyer)

	f.fund(t, bob, 1000)
	_, err = f.ledger.BuyProperty(ctx, bob, hash, 99)
	assert.ErrorIs(t, err, domain.ErrIncorrectPayment)
	_, err = f.ledger.BuyProperty(ctx, bob, hash, 101)
	assert.ErrorIs(t, err, domain.ErrIncorrectPayment)

	_, err = f.ledger.BuyProperty(ctx, carol, hash, 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// No rejection mutated anything.
	owner, _ := f.ledger.OwnerOf(hash)
	assert.Equal(t, alice, owner)
	listing, _ := f.ledger.ListingOf(hash)
	assert.True(t, listing.ForSale)
	assert.Equal(t, uint64(1000), f.balance(t, bob))
	assert.Equal(t, uint64(0), f.ledger.Fees().Accrued)

	// A completed sale delists the property for good.
	_, err = f.ledger.BuyProperty(ctx, bob, hash, 100)
	require.NoError(t, err)
	f.fund(t, carol, 1000)
	_, err = f.ledger.BuyProperty(ctx, carol, hash, 100)
	assert.ErrorIs(t, err, domain.ErrNotListed)
}

func TestBuyProperty_ResaleChain(t *testing.T) {
	f := newFixture(t, 250)
	ctx := context.Background()
	hash := domain.HashProperty("Respubliki 1", 45)

	_, err := f.ledger.ListProperty(ctx, alice, hash, 10000)
	require.NoError(t, err)
	f.fund(t, bob, 10000)
	_, err = f.ledger.BuyProperty(ctx, bob, hash, 10000)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), f.ledger.Fees().Accrued)

	// The new owner re-lists at a higher price and sells on.
	_, err = f.ledger.ListProperty(ctx, bob, hash, 20000)
	require.NoError(t, err)
	f.fund(t, carol, 20000)
	_, err = f.ledger.BuyProperty(ctx, carol, hash, 20000)
	require.NoError(t, err)

	owner, _ := f.ledger.OwnerOf(hash)
	assert.Equal(t, carol, owner)
	assert.Equal(t, uint64(750), f.ledger.Fees().Accrued)
	assert.Equal(t, uint64(9750), f.balance(t, alice))
	// Bob spent his whole deposit on the first purchase; what he holds now is
	// the second sale's proceeds.
	assert.Equal(t, uint64(19500), f.balance(t, bob))
	assert.Equal(t, uint64(0), f.balance(t, carol))
}

func TestSetFeeRate(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	_, err := f.ledger.SetFeeRate(ctx, alice, 50)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.ledger.SetFeeRate(ctx, operator, domain.MaxFeeBps+1)
	assert.ErrorIs(t, err, domain.ErrFeeTooHigh)

	events, err := f.ledger.SetFeeRate(ctx, operator, 250)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventFeeRateUpdated, events[0].Type)
	assert.Equal(t, uint32(250), events[0].FeeBps)
	assert.Equal(t, uint32(250), f.ledger.Fees().RateBps)

	// The new rate applies to the next sale.
	hash := domain.HashProperty("Baker Street 221B", 120)
	_, err = f.ledger.ListProperty(ctx, alice, hash, 10000)
	require.NoError(t, err)
	f.fund(t, bob, 10000)
	_, err = f.ledger.BuyProperty(ctx, bob, hash, 10000)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), f.ledger.Fees().Accrued)

	// Zero is a legal rate.
	_, err = f.ledger.SetFeeRate(ctx, operator, 0)
	require.NoError(t, err)
}

func TestWithdrawFees(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	_, err := f.ledger.WithdrawFees(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.ledger.WithdrawFees(ctx, operator)
	assert.ErrorIs(t, err, domain.ErrNoFeesAvailable)

	hash := domain.HashProperty("Abay Avenue 52", 85)
	_, err = f.ledger.ListProperty(ctx, alice, hash, 10000)
	require.NoError(t, err)
	f.fund(t, bob, 10000)
	_, err = f.ledger.BuyProperty(ctx, bob, hash, 10000)
	require.NoError(t, err)
	require.Equal(t, uint64(100), f.ledger.Fees().Accrued)

	events, err := f.ledger.WithdrawFees(ctx, operator)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventFeesWithdrawn, events[0].Type)
	assert.Equal(t, uint64(100), events[0].Amount)

	assert.Equal(t, uint64(0), f.ledger.Fees().Accrued)
	assert.Equal(t, uint64(100), f.balance(t, operator))

	_, err = f.ledger.WithdrawFees(ctx, operator)
	assert.ErrorIs(t, err, domain.ErrNoFeesAvailable)
}

func TestActiveListings(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	assert.Empty(t, f.ledger.ActiveListings())

	h1 := domain.HashProperty("Baker Street 221B", 120)
	h2 := domain.HashProperty("Abay Avenue 52", 85)
	h3 := domain.HashProperty("Dostyk 5", 60)

	_, err := f.ledger.ListProperty(ctx, alice, h1, 100)
	require.NoError(t, err)
	_, err = f.ledger.ListProperty(ctx, bob, h2, 200)
	require.NoError(t, err)
	_, err = f.ledger.ListProperty(ctx, alice, h3, 300)
	require.NoError(t, err)

	_, err = f.ledger.CancelListing(ctx, alice, h3)
	require.NoError(t, err)

	listings := f.ledger.ActiveListings()
	require.Len(t, listings, 2)
	// Stable hash order.
	assert.True(t, listings[0].Hash.String() < listings[1].Hash.String())
	for _, l := range listings {
		assert.NotEqual(t, h3, l.Hash)
		assert.NotZero(t, l.Price)
	}
}

func TestRecover_ReplaysJournal(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	hash := domain.HashProperty("Baker Street 221B", 120)

	_, err := f.ledger.ListProperty(ctx, alice, hash, 200)
	require.NoError(t, err)
	f.fund(t, bob, 200)
	_, err = f.ledger.BuyProperty(ctx, bob, hash, 200)
	require.NoError(t, err)
	_, err = f.ledger.SetFeeRate(ctx, operator, 250)
	require.NoError(t, err)

	// A fresh ledger over the same journal converges to the same state, even
	// with a different deployment-time fee rate: the sold event carries the
	// fee that actually accrued.
	recovered, err := New(f.journal, settlement.NewMemoryBank(), operator, 0, nil)
	require.NoError(t, err)
	require.NoError(t, recovered.Recover(ctx))

	owner, ok := recovered.OwnerOf(hash)
	require.True(t, ok)
	assert.Equal(t, bob, owner)
	assert.Equal(t, []domain.Hash{hash}, recovered.PropertiesOf(bob))
	assert.Equal(t, domain.FeeState{RateBps: 250, Accrued: 2}, recovered.Fees())

	listing, registered := recovered.ListingOf(hash)
	assert.True(t, registered)
	assert.False(t, listing.ForSale)

	// New operations continue the sequence without gaps.
	_, err = recovered.ListProperty(ctx, bob, hash, 400)
	require.NoError(t, err)
}

func TestRecover_JournalGap(t *testing.T) {
	journal := memory.NewEventJournal()
	require.NoError(t, journal.Append(context.Background(), &domain.Event{Seq: 1, Type: domain.EventFeeRateUpdated, FeeBps: 50}))

	led, err := New(&skippingJournal{inner: journal}, settlement.NewMemoryBank(), operator, 0, nil)
	require.NoError(t, err)
	err = led.Recover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal gap")
}

// skippingJournal serves events starting at seq 2 to simulate a truncated
// journal head.
type skippingJournal struct {
	inner *memory.EventJournal
}

func (j *skippingJournal) Append(ctx context.Context, events ...*domain.Event) error {
	return j.inner.Append(ctx, events...)
}

func (j *skippingJournal) Load(ctx context.Context, fromSeq uint64) ([]domain.Event, error) {
	events, err := j.inner.Load(ctx, fromSeq)
	if err != nil || len(events) == 0 {
		return events, err
	}
	shifted := make([]domain.Event, len(events))
	for i, ev := range events {
		ev.Seq++
		shifted[i] = ev
	}
	return shifted, nil
}

func (j *skippingJournal) LastSeq(ctx context.Context) (uint64, error) {
	return j.inner.LastSeq(ctx)
}

// failingJournal rejects every append after the first n.
type failingJournal struct {
	inner   *memory.EventJournal
	allowed int
	seen    int
}

func (j *failingJournal) Append(ctx context.Context, events ...*domain.Event) error {
	j.seen++
	if j.seen > j.allowed {
		return errors.New("journal unavailable")
	}
	return j.inner.Append(ctx, events...)
}

func (j *failingJournal) Load(ctx context.Context, fromSeq uint64) ([]domain.Event, error) {
	return j.inner.Load(ctx, fromSeq)
}

func (j *failingJournal) LastSeq(ctx context.Context) (uint64, error) {
	return j.inner.LastSeq(ctx)
}

func TestListProperty_JournalFailureLeavesNoState(t *testing.T) {
	ctx := context.Background()
	journal := &failingJournal{inner: memory.NewEventJournal(), allowed: 0}
	led, err := New(journal, settlement.NewMemoryBank(), operator, 100, nil)
	require.NoError(t, err)

	hash := domain.HashProperty("Baker Street 221B", 120)
	_, err = led.ListProperty(ctx, alice, hash, 200)
	require.Error(t, err)

	// The registration and listing events commit as one batch; a failed
	// append leaves neither half behind, live or after replay.
	_, registered := led.OwnerOf(hash)
	assert.False(t, registered)
	assert.Empty(t, led.PropertiesOf(alice))

	recovered, err := New(journal.inner, settlement.NewMemoryBank(), operator, 100, nil)
	require.NoError(t, err)
	require.NoError(t, recovered.Recover(ctx))
	_, registered = recovered.OwnerOf(hash)
	assert.False(t, registered)
}

func TestBuyProperty_JournalFailureRefundsBuyer(t *testing.T) {
	ctx := context.Background()
	journal := &failingJournal{inner: memory.NewEventJournal(), allowed: 1}
	bank := settlement.NewMemoryBank()
	led, err := New(journal, bank, operator, 100, nil)
	require.NoError(t, err)

	hash := domain.HashProperty("Baker Street 221B", 120)
	_, err = led.ListProperty(ctx, alice, hash, 200)
	require.NoError(t, err)

	require.NoError(t, bank.Credit(ctx, bob, 200))
	_, err = led.BuyProperty(ctx, bob, hash, 200)
	require.Error(t, err)

	// The debit was rolled back and the sale never happened.
	bal, err := bank.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), bal)
	owner, _ := led.OwnerOf(hash)
	assert.Equal(t, alice, owner)
	listing, _ := led.ListingOf(hash)
	assert.True(t, listing.ForSale)
	assert.Equal(t, uint64(0), led.Fees().Accrued)
}

// blockedPayoutBank accepts debits but refuses credits to one address.
type blockedPayoutBank struct {
	*settlement.MemoryBank
	blocked domain.Address
}

func (b *blockedPayoutBank) Credit(ctx context.Context, addr domain.Address, amount uint64) error {
	if addr == b.blocked {
		return errors.New("settlement backend unavailable")
	}
	return b.MemoryBank.Credit(ctx, addr, amount)
}

func TestBuyProperty_CreditFailureKeepsSaleCommitted(t *testing.T) {
	ctx := context.Background()
	bank := &blockedPayoutBank{MemoryBank: settlement.NewMemoryBank(), blocked: alice}
	led, err := New(memory.NewEventJournal(), bank, operator, 100, nil)
	require.NoError(t, err)

	hash := domain.HashProperty("Baker Street 221B", 120)
	_, err = led.ListProperty(ctx, alice, hash, 200)
	require.NoError(t, err)
	require.NoError(t, bank.MemoryBank.Credit(ctx, bob, 200))

	events, err := led.BuyProperty(ctx, bob, hash, 200)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSettlementPending)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPropertySold, events[0].Type)

	// The sale is committed despite the unpaid payout.
	owner, _ := led.OwnerOf(hash)
	assert.Equal(t, bob, owner)
	assert.Equal(t, uint64(2), led.Fees().Accrued)
	bal, err := bank.MemoryBank.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), bal)
}

func TestWithdrawFees_CreditFailureKeepsWithdrawalCommitted(t *testing.T) {
	ctx := context.Background()
	bank := &blockedPayoutBank{MemoryBank: settlement.NewMemoryBank(), blocked: operator}
	led, err := New(memory.NewEventJournal(), bank, operator, 250, nil)
	require.NoError(t, err)

	hash := domain.HashProperty("Abay Avenue 52", 85)
	_, err = led.ListProperty(ctx, alice, hash, 10000)
	require.NoError(t, err)
	require.NoError(t, bank.MemoryBank.Credit(ctx, bob, 10000))
	_, err = led.BuyProperty(ctx, bob, hash, 10000)
	require.NoError(t, err)

	events, err := led.WithdrawFees(ctx, operator)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSettlementPending)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(250), events[0].Amount)
	assert.Equal(t, uint64(0), led.Fees().Accrued)
}

// reentrantBank drives a purchase attempt back into the ledger from inside
// the seller credit, the way a malicious payee contract would.
type reentrantBank struct {
	*settlement.MemoryBank
	ledger *Ledger
	hash   domain.Hash
	buyer  domain.Address
	price  uint64

	reentered bool
	reErr     error
}

func (b *reentrantBank) Credit(ctx context.Context, addr domain.Address, amount uint64) error {
	if b.ledger != nil && !b.reentered {
		b.reentered = true
		_, b.reErr = b.ledger.BuyProperty(ctx, b.buyer, b.hash, b.price)
	}
	return b.MemoryBank.Credit(ctx, addr, amount)
}

func TestBuyProperty_ReentrantPurchaseRejected(t *testing.T) {
	ctx := context.Background()
	bank := &reentrantBank{MemoryBank: settlement.NewMemoryBank()}
	led, err := New(memory.NewEventJournal(), bank, operator, 100, nil)
	require.NoError(t, err)

	hash := domain.HashProperty("Baker Street 221B", 120)
	_, err = led.ListProperty(ctx, alice, hash, 200)
	require.NoError(t, err)
	require.NoError(t, bank.MemoryBank.Credit(ctx, carol, 1000))

	bank.ledger = led
	bank.hash = hash
	bank.buyer = carol
	bank.price = 200

	require.NoError(t, bank.MemoryBank.Credit(ctx, bob, 200))
	bank.reentered = false

	_, err = led.BuyProperty(ctx, bob, hash, 200)
	require.NoError(t, err)

	// The nested attempt ran and was rejected: the sale had already delisted
	// the property before any value left the ledger.
	assert.True(t, bank.reentered)
	assert.ErrorIs(t, bank.reErr, domain.ErrNotListed)

	owner, _ := led.OwnerOf(hash)
	assert.Equal(t, bob, owner)
}

func TestWithdrawFees_ReentrantWithdrawalRejected(t *testing.T) {
	ctx := context.Background()
	bank := &reentrantWithdrawBank{MemoryBank: settlement.NewMemoryBank()}
	led, err := New(memory.NewEventJournal(), bank, operator, 250, nil)
	require.NoError(t, err)
	bank.ledger = led

	hash := domain.HashProperty("Abay Avenue 52", 85)
	_, err = led.ListProperty(ctx, alice, hash, 10000)
	require.NoError(t, err)
	require.NoError(t, bank.MemoryBank.Credit(ctx, bob, 10000))
	_, err = led.BuyProperty(ctx, bob, hash, 10000)
	require.NoError(t, err)
	require.Equal(t, uint64(250), led.Fees().Accrued)

	bank.armed = true
	_, err = led.WithdrawFees(ctx, operator)
	require.NoError(t, err)

	assert.True(t, bank.reentered)
	assert.ErrorIs(t, bank.reErr, domain.ErrNoFeesAvailable)
	assert.Equal(t, uint64(0), led.Fees().Accrued)

	// Exactly one withdrawal was paid out.
	bal, err := bank.MemoryBank.BalanceOf(ctx, operator)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), bal)
}

type reentrantWithdrawBank struct {
	*settlement.MemoryBank
	ledger *Ledger

	armed     bool
	reentered bool
	reErr     error
}

func (b *reentrantWithdrawBank) Credit(ctx context.Context, addr domain.Address, amount uint64) error {
	if b.armed && !b.reentered {
		b.reentered = true
		_, b.reErr = b.ledger.WithdrawFees(ctx, operator)
	}
	return b.MemoryBank.Credit(ctx, addr, amount)
}

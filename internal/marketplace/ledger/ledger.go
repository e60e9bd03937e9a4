package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/domain"
)

// Ledger is the authoritative marketplace state machine: property ownership,
// listings, the owner index and the operator fee account. All mutations run
// to completion under a single writer lock, are journaled before they are
// applied, and the only external effect - the settlement credit - happens
// strictly after the state is finalized. A re-entrant call issued during that
// credit therefore observes fully updated, non-purchasable state.
type Ledger struct {
	journal    domain.EventJournal
	settlement domain.Settlement
	operator   domain.Address
	logger     *zap.Logger

	// Overridable for tests.
	now   func() time.Time
	newID func() string

	mu         sync.Mutex
	feeBps     uint32
	feeBalance uint64
	owners     map[domain.Hash]domain.Address
	listings   map[domain.Hash]domain.Listing
	ownerIndex map[domain.Address][]domain.Hash
	nextSeq    uint64
}

// New creates an empty ledger. initialFeeBps is the deployment-time fee rate
// and must satisfy the same cap as SetFeeRate; operator is the only identity
// allowed to change the rate or withdraw accrued fees.
func New(journal domain.EventJournal, settlement domain.Settlement, operator domain.Address, initialFeeBps uint32, logger *zap.Logger) (*Ledger, error) {
	if journal == nil {
		return nil, fmt.Errorf("ledger: event journal is required")
	}
	if settlement == nil {
		return nil, fmt.Errorf("ledger: settlement is required")
	}
	if operator.IsZero() {
		return nil, fmt.Errorf("ledger: operator address is required")
	}
	if initialFeeBps > domain.MaxFeeBps {
		return nil, fmt.Errorf("ledger: initial fee rate %d bps: %w", initialFeeBps, domain.ErrFeeTooHigh)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		journal:    journal,
		settlement: settlement,
		operator:   operator,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
		feeBps:     initialFeeBps,
		owners:     make(map[domain.Hash]domain.Address),
		listings:   make(map[domain.Hash]domain.Listing),
		ownerIndex: make(map[domain.Address][]domain.Hash),
		nextSeq:    1,
	}, nil
}

// Recover rebuilds the in-memory state by replaying the journal from the
// first event, through the same apply path used by live operations.
func (l *Ledger) Recover(ctx context.Context) error {
	events, err := l.journal.Load(ctx, 1)
	if err != nil {
		return fmt.Errorf("ledger: load journal: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range events {
		ev := &events[i]
		if ev.Seq != l.nextSeq {
			return fmt.Errorf("ledger: journal gap: expected seq %d, got %d", l.nextSeq, ev.Seq)
		}
		l.apply(ev)
	}

	if len(events) > 0 {
		l.logger.Info("Ledger state recovered from journal",
			zap.Int("events", len(events)),
			zap.Uint64("next_seq", l.nextSeq),
		)
	}
	return nil
}

// ListProperty registers the property on first listing (the caller becomes
// its owner) or re-lists it when the caller already holds title. Emits
// PropertyRegistered on the registration branch, then PropertyListed.
func (l *Ledger) ListProperty(ctx context.Context, caller domain.Address, hash domain.Hash, price uint64) ([]domain.Event, error) {
	if caller.IsZero() {
		return nil, domain.ErrUnauthorized
	}
	if hash.IsZero() {
		return nil, domain.ErrInvalidHash
	}
	if price == 0 {
		return nil, domain.ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	owner, registered := l.owners[hash]
	if registered {
		if l.listings[hash].ForSale {
			return nil, domain.ErrAlreadyForSale
		}
		if owner != caller {
			return nil, domain.ErrNotOwner
		}
	}

	var events []*domain.Event
	if !registered {
		reg := l.newEvent(domain.EventPropertyRegistered)
		reg.Hash = hash
		reg.Owner = caller
		events = append(events, reg)
	}
	listed := l.newEventAt(domain.EventPropertyListed, l.nextSeq+uint64(len(events)))
	listed.Hash = hash
	listed.Owner = caller
	listed.Price = price
	events = append(events, listed)

	if err := l.journal.Append(ctx, events...); err != nil {
		return nil, fmt.Errorf("ledger: append listing events: %w", err)
	}
	for _, ev := range events {
		l.apply(ev)
	}
	return collect(events), nil
}

// CancelListing withdraws the property from sale without changing ownership.
func (l *Ledger) CancelListing(ctx context.Context, caller domain.Address, hash domain.Hash) ([]domain.Event, error) {
	if caller.IsZero() {
		return nil, domain.ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if owner, registered := l.owners[hash]; !registered || owner != caller {
		return nil, domain.ErrNotOwner
	}
	if !l.listings[hash].ForSale {
		return nil, domain.ErrNotListed
	}

	ev := l.newEvent(domain.EventListingCancelled)
	ev.Hash = hash
	ev.Owner = caller

	if err := l.journal.Append(ctx, ev); err != nil {
		return nil, fmt.Errorf("ledger: append cancel event: %w", err)
	}
	l.apply(ev)
	return []domain.Event{*ev}, nil
}

// BuyProperty transfers title to the buyer against exact payment. The buyer's
// escrowed balance is debited by the full payment, the fee accrues to the
// ledger and the proceeds are credited to the seller as the operation's last
// effect, after every state change is committed.
func (l *Ledger) BuyProperty(ctx context.Context, buyer domain.Address, hash domain.Hash, payment uint64) ([]domain.Event, error) {
	if buyer.IsZero() {
		return nil, domain.ErrUnauthorized
	}

	l.mu.Lock()

	listing := l.listings[hash]
	if !listing.ForSale {
		l.mu.Unlock()
		return nil, domain.ErrNotListed
	}
	seller := l.owners[hash]
	if seller == buyer {
		l.mu.Unlock()
		return nil, domain.ErrSellerIsBuyer
	}
	if payment != listing.Price {
		l.mu.Unlock()
		return nil, domain.ErrIncorrectPayment
	}

	fee := domain.ComputeFee(listing.Price, l.feeBps)
	proceeds := listing.Price - fee

	if err := l.settlement.Debit(ctx, buyer, payment); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("ledger: debit buyer: %w", err)
	}

	ev := l.newEvent(domain.EventPropertySold)
	ev.Hash = hash
	ev.Owner = seller
	ev.Buyer = buyer
	ev.Price = listing.Price
	ev.Fee = fee

	if err := l.journal.Append(ctx, ev); err != nil {
		// The debit is the only effect so far; return it before rejecting.
		if refundErr := l.settlement.Credit(ctx, buyer, payment); refundErr != nil {
			l.logger.Error("Failed to refund buyer after journal failure",
				zap.String("buyer", string(buyer)),
				zap.Uint64("amount", payment),
				zap.Error(refundErr),
			)
		}
		l.mu.Unlock()
		return nil, fmt.Errorf("ledger: append sale event: %w", err)
	}
	l.apply(ev)
	l.mu.Unlock()

	// Outbound value transfer comes last: ownership, the for-sale flag and the
	// fee accrual are already committed, so a re-entrant purchase attempt
	// fails with ErrNotListed.
	if err := l.settlement.Credit(ctx, seller, proceeds); err != nil {
		l.logger.Error("Seller credit failed after committed sale",
			zap.String("hash", hash.String()),
			zap.String("seller", string(seller)),
			zap.Uint64("proceeds", proceeds),
			zap.Error(err),
		)
		return []domain.Event{*ev}, fmt.Errorf("%w: credit seller after sale: %v", domain.ErrSettlementPending, err)
	}
	return []domain.Event{*ev}, nil
}

// SetFeeRate updates the marketplace fee rate. Operator only, capped at
// MaxFeeBps; takes effect from the next sale.
func (l *Ledger) SetFeeRate(ctx context.Context, caller domain.Address, bps uint32) ([]domain.Event, error) {
	if caller != l.operator {
		return nil, domain.ErrUnauthorized
	}
	if bps > domain.MaxFeeBps {
		return nil, domain.ErrFeeTooHigh
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ev := l.newEvent(domain.EventFeeRateUpdated)
	ev.FeeBps = bps

	if err := l.journal.Append(ctx, ev); err != nil {
		return nil, fmt.Errorf("ledger: append fee rate event: %w", err)
	}
	l.apply(ev)
	return []domain.Event{*ev}, nil
}

// WithdrawFees zeroes the fee account and credits the full prior balance to
// the operator. The credit is the last effect, after the zeroing is
// committed, so a re-entrant withdrawal fails with ErrNoFeesAvailable.
func (l *Ledger) WithdrawFees(ctx context.Context, caller domain.Address) ([]domain.Event, error) {
	if caller != l.operator {
		return nil, domain.ErrUnauthorized
	}

	l.mu.Lock()

	amount := l.feeBalance
	if amount == 0 {
		l.mu.Unlock()
		return nil, domain.ErrNoFeesAvailable
	}

	ev := l.newEvent(domain.EventFeesWithdrawn)
	ev.Owner = l.operator
	ev.Amount = amount

	if err := l.journal.Append(ctx, ev); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("ledger: append withdrawal event: %w", err)
	}
	l.apply(ev)
	l.mu.Unlock()

	if err := l.settlement.Credit(ctx, l.operator, amount); err != nil {
		l.logger.Error("Operator credit failed after committed withdrawal",
			zap.Uint64("amount", amount),
			zap.Error(err),
		)
		return []domain.Event{*ev}, fmt.Errorf("%w: credit operator: %v", domain.ErrSettlementPending, err)
	}
	return []domain.Event{*ev}, nil
}

// OwnerOf returns the current titleholder of the property, if registered.
func (l *Ledger) OwnerOf(hash domain.Hash) (domain.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[hash]
	return owner, ok
}

// ListingOf returns the listing record for the property and whether the
// property is registered at all. An unregistered or cancelled listing has the
// zero value.
func (l *Ledger) ListingOf(hash domain.Hash) (domain.Listing, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, registered := l.owners[hash]
	return l.listings[hash], registered
}

// PropertiesOf returns the hashes currently owned by the address, in
// registration/acquisition order.
func (l *Ledger) PropertiesOf(addr domain.Address) []domain.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	owned := l.ownerIndex[addr]
	out := make([]domain.Hash, len(owned))
	copy(out, owned)
	return out
}

// ActiveListings returns the catalog of properties currently for sale,
// ordered by hash for a stable view.
func (l *Ledger) ActiveListings() []domain.ActiveListing {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.ActiveListing, 0)
	for hash, listing := range l.listings {
		if !listing.ForSale {
			continue
		}
		out = append(out, domain.ActiveListing{
			Hash:  hash,
			Owner: l.owners[hash],
			Price: listing.Price,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hash.String() < out[j].Hash.String()
	})
	return out
}

// Fees returns the current fee rate and the accrued, not yet withdrawn
// balance.
func (l *Ledger) Fees() domain.FeeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.FeeState{RateBps: l.feeBps, Accrued: l.feeBalance}
}

// Operator returns the privileged operator address.
func (l *Ledger) Operator() domain.Address {
	return l.operator
}

// apply folds one journaled event into the state maps. It is the single
// mutation path, shared by live operations and Recover, and must be called
// with the lock held.
func (l *Ledger) apply(ev *domain.Event) {
	switch ev.Type {
	case domain.EventPropertyRegistered:
		l.owners[ev.Hash] = ev.Owner
		l.ownerIndex[ev.Owner] = append(l.ownerIndex[ev.Owner], ev.Hash)
	case domain.EventPropertyListed:
		l.listings[ev.Hash] = domain.Listing{Price: ev.Price, ForSale: true}
	case domain.EventListingCancelled:
		// A cancelled listing reads back as the zero value, same as one that
		// never existed; only the owner record proves registration.
		delete(l.listings, ev.Hash)
	case domain.EventPropertySold:
		seller := l.owners[ev.Hash]
		l.owners[ev.Hash] = ev.Buyer
		l.ownerIndex[seller] = removeHash(l.ownerIndex[seller], ev.Hash)
		l.ownerIndex[ev.Buyer] = append(l.ownerIndex[ev.Buyer], ev.Hash)
		l.listings[ev.Hash] = domain.Listing{Price: ev.Price, ForSale: false}
		l.feeBalance += ev.Fee
	case domain.EventFeeRateUpdated:
		l.feeBps = ev.FeeBps
	case domain.EventFeesWithdrawn:
		l.feeBalance -= ev.Amount
	}
	l.nextSeq = ev.Seq + 1
}

func (l *Ledger) newEvent(t domain.EventType) *domain.Event {
	return l.newEventAt(t, l.nextSeq)
}

func (l *Ledger) newEventAt(t domain.EventType, seq uint64) *domain.Event {
	return &domain.Event{
		Seq:  seq,
		ID:   l.newID(),
		Type: t,
		At:   l.now().UTC(),
	}
}

func collect(events []*domain.Event) []domain.Event {
	out := make([]domain.Event, len(events))
	for i, ev := range events {
		out[i] = *ev
	}
	return out
}

func removeHash(hashes []domain.Hash, target domain.Hash) []domain.Hash {
	for i, h := range hashes {
		if h == target {
			return append(hashes[:i], hashes[i+1:]...)
		}
	}
	return hashes
}

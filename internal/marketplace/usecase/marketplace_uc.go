package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/domain"
	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/ledger"
	"github.com/mheravagimyan/real-estate-ledger/internal/platform/metrics"
)

const (
	activeListingsCacheKey = "listings:active"
	activeListingsCacheTTL = 30 * time.Second
)

// MarketplaceUsecase orchestrates ledger operations with the surrounding
// concerns: event publication, the catalog read cache and metrics. The ledger
// itself stays the single source of truth; everything here is post-commit.
type MarketplaceUsecase struct {
	ledger     *ledger.Ledger
	settlement domain.Settlement
	journal    domain.EventJournal
	publisher  domain.EventPublisher
	cache      domain.CacheRepository
	metrics    *metrics.Manager
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewMarketplaceUsecase(
	led *ledger.Ledger,
	settlement domain.Settlement,
	journal domain.EventJournal,
	publisher domain.EventPublisher,
	cache domain.CacheRepository,
	mm *metrics.Manager,
	logger *zap.Logger,
) *MarketplaceUsecase {
	return &MarketplaceUsecase{
		ledger:     led,
		settlement: settlement,
		journal:    journal,
		publisher:  publisher,
		cache:      cache,
		metrics:    mm,
		logger:     logger,
		tracer:     otel.Tracer("marketplace-usecase"),
	}
}

func (uc *MarketplaceUsecase) ListProperty(ctx context.Context, caller domain.Address, hash domain.Hash, price uint64) ([]domain.Event, error) {
	ctx, span := uc.tracer.Start(ctx, "MarketplaceUsecase.ListProperty")
	defer span.End()

	events, err := uc.ledger.ListProperty(ctx, caller, hash, price)
	if err != nil {
		uc.countError("list_property")
		return nil, err
	}

	for _, ev := range events {
		if ev.Type == domain.EventPropertyRegistered && uc.metrics != nil {
			uc.metrics.PropertiesRegisteredTotal.Inc()
		}
	}
	if uc.metrics != nil {
		uc.metrics.ListingsCreatedTotal.Inc()
	}

	uc.afterCommit(ctx, events)
	return events, nil
}

func (uc *MarketplaceUsecase) CancelListing(ctx context.Context, caller domain.Address, hash domain.Hash) ([]domain.Event, error) {
	ctx, span := uc.tracer.Start(ctx, "MarketplaceUsecase.CancelListing")
	defer span.End()

	events, err := uc.ledger.CancelListing(ctx, caller, hash)
	if err != nil {
		uc.countError("cancel_listing")
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.ListingsCancelledTotal.Inc()
	}

	uc.afterCommit(ctx, events)
	return events, nil
}

func (uc *MarketplaceUsecase) BuyProperty(ctx context.Context, buyer domain.Address, hash domain.Hash, payment uint64) ([]domain.Event, error) {
	ctx, span := uc.tracer.Start(ctx, "MarketplaceUsecase.BuyProperty")
	defer span.End()

	events, err := uc.ledger.BuyProperty(ctx, buyer, hash, payment)
	if err != nil {
		uc.countError("buy_property")
		// A committed sale whose payout credit failed still produced events;
		// publish them so indexers stay consistent with the journal.
		if len(events) > 0 {
			uc.afterCommit(ctx, events)
		}
		return events, err
	}
	if uc.metrics != nil {
		uc.metrics.SalesTotal.Inc()
		for _, ev := range events {
			uc.metrics.FeesAccruedTotal.Add(float64(ev.Fee))
		}
	}

	uc.afterCommit(ctx, events)
	return events, nil
}

func (uc *MarketplaceUsecase) SetFeeRate(ctx context.Context, caller domain.Address, bps uint32) ([]domain.Event, error) {
	ctx, span := uc.tracer.Start(ctx, "MarketplaceUsecase.SetFeeRate")
	defer span.End()

	events, err := uc.ledger.SetFeeRate(ctx, caller, bps)
	if err != nil {
		uc.countError("set_fee_rate")
		return nil, err
	}

	uc.publishEvents(ctx, events)
	return events, nil
}

func (uc *MarketplaceUsecase) WithdrawFees(ctx context.Context, caller domain.Address) ([]domain.Event, error) {
	ctx, span := uc.tracer.Start(ctx, "MarketplaceUsecase.WithdrawFees")
	defer span.End()

	events, err := uc.ledger.WithdrawFees(ctx, caller)
	if err != nil {
		uc.countError("withdraw_fees")
		if len(events) > 0 {
			uc.publishEvents(ctx, events)
		}
		return events, err
	}
	if uc.metrics != nil {
		for _, ev := range events {
			uc.metrics.FeesWithdrawnTotal.Add(float64(ev.Amount))
		}
	}

	uc.publishEvents(ctx, events)
	return events, nil
}

// Deposit funds the caller's settlement account. Funding is plumbing around
// the ledger, not a ledger mutation, so it is not journaled.
func (uc *MarketplaceUsecase) Deposit(ctx context.Context, caller domain.Address, amount uint64) error {
	ctx, span := uc.tracer.Start(ctx, "MarketplaceUsecase.Deposit")
	defer span.End()

	if amount == 0 {
		return domain.ErrInvalidAmount
	}
	if err := uc.settlement.Credit(ctx, caller, amount); err != nil {
		return fmt.Errorf("MarketplaceUsecase.Deposit: %w", err)
	}
	uc.logger.Info("Account funded",
		zap.String("address", string(caller)),
		zap.Uint64("amount", amount),
	)
	return nil
}

func (uc *MarketplaceUsecase) BalanceOf(ctx context.Context, addr domain.Address) (uint64, error) {
	return uc.settlement.BalanceOf(ctx, addr)
}

// PropertyOf returns the ownership and listing view of a registered property.
func (uc *MarketplaceUsecase) PropertyOf(ctx context.Context, hash domain.Hash) (*domain.PropertyView, error) {
	owner, registered := uc.ledger.OwnerOf(hash)
	if !registered {
		return nil, domain.ErrNotRegistered
	}
	listing, _ := uc.ledger.ListingOf(hash)
	return &domain.PropertyView{Hash: hash, Owner: owner, Listing: listing}, nil
}

func (uc *MarketplaceUsecase) PropertiesOf(ctx context.Context, addr domain.Address) []domain.Hash {
	return uc.ledger.PropertiesOf(addr)
}

// ActiveListings serves the marketplace catalog, cache-aside with a short
// TTL; every committed mutation that touches a listing invalidates it.
func (uc *MarketplaceUsecase) ActiveListings(ctx context.Context) ([]domain.ActiveListing, error) {
	ctx, span := uc.tracer.Start(ctx, "MarketplaceUsecase.ActiveListings")
	defer span.End()

	if uc.cache != nil {
		cached, err := uc.cache.Get(ctx, activeListingsCacheKey)
		if err == nil {
			var listings []domain.ActiveListing
			if unmarshalErr := json.Unmarshal(cached, &listings); unmarshalErr == nil {
				uc.logger.Debug("Active listings served from cache")
				return listings, nil
			}
			if delErr := uc.cache.Delete(ctx, activeListingsCacheKey); delErr != nil {
				uc.logger.Warn("Failed to delete corrupted cache entry", zap.Error(delErr))
			}
		} else if !errors.Is(err, domain.ErrCacheMiss) {
			uc.logger.Warn("Failed to get active listings from cache", zap.Error(err))
		}
	}

	listings := uc.ledger.ActiveListings()

	if uc.cache != nil {
		data, err := json.Marshal(listings)
		if err != nil {
			uc.logger.Warn("Failed to marshal active listings for caching", zap.Error(err))
		} else if setErr := uc.cache.Set(ctx, activeListingsCacheKey, data, activeListingsCacheTTL); setErr != nil {
			uc.logger.Warn("Failed to cache active listings", zap.Error(setErr))
		}
	}
	return listings, nil
}

func (uc *MarketplaceUsecase) Fees(ctx context.Context) domain.FeeState {
	return uc.ledger.Fees()
}

// Events replays the journal from the given sequence for external indexers.
func (uc *MarketplaceUsecase) Events(ctx context.Context, fromSeq uint64) ([]domain.Event, error) {
	events, err := uc.journal.Load(ctx, fromSeq)
	if err != nil {
		return nil, fmt.Errorf("MarketplaceUsecase.Events: %w", err)
	}
	return events, nil
}

// afterCommit runs the best-effort post-commit tail of a listing-affecting
// mutation: publish the events and invalidate the catalog cache.
func (uc *MarketplaceUsecase) afterCommit(ctx context.Context, events []domain.Event) {
	uc.publishEvents(ctx, events)

	if uc.cache != nil {
		if err := uc.cache.Delete(ctx, activeListingsCacheKey); err != nil {
			uc.logger.Warn("Failed to invalidate active listings cache", zap.Error(err))
		}
	}
}

func (uc *MarketplaceUsecase) publishEvents(ctx context.Context, events []domain.Event) {
	if uc.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := uc.publisher.PublishEvent(ctx, ev); err != nil {
			uc.logger.Warn("Failed to publish ledger event",
				zap.String("type", string(ev.Type)),
				zap.Uint64("seq", ev.Seq),
				zap.Error(err),
			)
		}
	}
}

func (uc *MarketplaceUsecase) countError(operation string) {
	if uc.metrics != nil {
		uc.metrics.OperationErrorsTotal.WithLabelValues(operation).Inc()
	}
}

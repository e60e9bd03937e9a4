package settlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/domain"
)

// MemoryBank keeps escrowed balances in process memory. It backs tests and
// single-node deployments without a database; the MongoDB account repository
// is the persistent alternative.
type MemoryBank struct {
	mu       sync.Mutex
	balances map[domain.Address]uint64
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{balances: make(map[domain.Address]uint64)}
}

func (b *MemoryBank) Credit(ctx context.Context, addr domain.Address, amount uint64) error {
	if addr.IsZero() {
		return fmt.Errorf("memory bank: credit to empty address")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] += amount
	return nil
}

func (b *MemoryBank) Debit(ctx context.Context, addr domain.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[addr] < amount {
		return domain.ErrInsufficientFunds
	}
	b.balances[addr] -= amount
	return nil
}

func (b *MemoryBank) BalanceOf(ctx context.Context, addr domain.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[addr], nil
}

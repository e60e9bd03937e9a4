package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/domain"
)

// EventJournal is an in-process journal used by tests and by deployments that
// accept losing history on restart. Appends of a batch are atomic.
type EventJournal struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewEventJournal() *EventJournal {
	return &EventJournal{}
}

func (j *EventJournal) Append(ctx context.Context, events ...*domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	next := uint64(len(j.events)) + 1
	for i, ev := range events {
		if ev.Seq != next+uint64(i) {
			return fmt.Errorf("memory journal: sequence out of order: expected %d, got %d", next+uint64(i), ev.Seq)
		}
	}
	for _, ev := range events {
		j.events = append(j.events, *ev)
	}
	return nil
}

func (j *EventJournal) Load(ctx context.Context, fromSeq uint64) ([]domain.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if fromSeq < 1 {
		fromSeq = 1
	}
	if fromSeq > uint64(len(j.events)) {
		return nil, nil
	}
	out := make([]domain.Event, uint64(len(j.events))-fromSeq+1)
	copy(out, j.events[fromSeq-1:])
	return out, nil
}

func (j *EventJournal) LastSeq(ctx context.Context) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return uint64(len(j.events)), nil
}

package domain

import "time"

// EventType tags a committed ledger mutation.
type EventType string

const (
	EventPropertyRegistered EventType = "property.registered"
	EventPropertyListed     EventType = "property.listed"
	EventListingCancelled   EventType = "listing.cancelled"
	EventPropertySold       EventType = "property.sold"
	EventFeeRateUpdated     EventType = "fee.rate_updated"
	EventFeesWithdrawn      EventType = "fee.withdrawn"
)

// Subject is the NATS subject the event is published on.
func (t EventType) Subject() string {
	return "ledger." + string(t)
}

// Event is one entry of the append-only ledger journal: exactly one per
// committed mutation, with a strictly increasing gap-free sequence number.
// External indexers rebuild the catalog by replaying events from seq 1 and
// cross-checking current listing state through the read API.
//
// The payload fields are a union over all event types; unused fields stay at
// their zero value. PropertySold carries the computed fee so a replay does not
// depend on the fee-rate history.
type Event struct {
	Seq  uint64    `json:"seq"`
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	At   time.Time `json:"at"`

	Hash    Hash    `json:"hash,omitempty"`
	Owner   Address `json:"owner,omitempty"`
	Buyer   Address `json:"buyer,omitempty"`
	Price   uint64  `json:"price,omitempty"`
	Fee     uint64  `json:"fee,omitempty"`
	FeeBps  uint32  `json:"fee_bps,omitempty"`
	Amount  uint64  `json:"amount,omitempty"`
}

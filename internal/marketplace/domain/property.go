package domain

// Address identifies a marketplace participant (seller, buyer or the
// operator). The HTTP layer fills it from the caller's token; the ledger
// treats it as an opaque identity.
type Address string

func (a Address) IsZero() bool {
	return a == ""
}

// Listing is the sale offer attached to a property hash. The zero value is
// the "never listed" state, which is indistinguishable from a cancelled
// listing except through the registration check on the owner record.
// Invariant: ForSale == true implies Price > 0.
type Listing struct {
	Price   uint64 `json:"price"`
	ForSale bool   `json:"for_sale"`
}

// PropertyView is the read model returned to external callers for a single
// registered property.
type PropertyView struct {
	Hash    Hash    `json:"hash"`
	Owner   Address `json:"owner"`
	Listing Listing `json:"listing"`
}

// ActiveListing is one row of the marketplace catalog: a property currently
// offered for sale.
type ActiveListing struct {
	Hash  Hash    `json:"hash"`
	Owner Address `json:"owner"`
	Price uint64  `json:"price"`
}

// FeeState is the operator-facing view of fee configuration and accrual.
type FeeState struct {
	RateBps uint32 `json:"rate_bps"`
	Accrued uint64 `json:"accrued"`
}

const (
	// MaxFeeBps caps the marketplace fee at 2.5% of the sale price.
	MaxFeeBps = 250
	// FeeDenominator is the basis-point scale fees are expressed in.
	FeeDenominator = 10000
)

// ComputeFee returns the operator fee for a sale: price * bps / 10000 with
// integer truncation, so any remainder stays with the seller. Split to avoid
// overflowing the intermediate product on large prices.
func ComputeFee(price uint64, bps uint32) uint64 {
	whole := price / FeeDenominator
	rem := price % FeeDenominator
	return whole*uint64(bps) + rem*uint64(bps)/FeeDenominator
}

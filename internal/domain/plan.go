package domain

// TakeProfitLeg is one fully-resolved rung of the take-profit ladder: a
// venue-legal trigger price and the grid-aligned quantity to close there.
type TakeProfitLeg struct {
	Price         float64
	Quantity      float64
	CloseFraction float64 // share of the then-remaining quantity this leg was allocated from
}

// TrailingSpec describes an optional venue-side trailing stop.
type TrailingSpec struct {
	ActivationPrice float64
	CallbackRate    float64 // percent distance the venue trails by
}

// OrderPlan is the concrete, venue-compliant order set derived from one trade
// instruction: the entry size plus every protective leg. All prices and
// quantities are already snapped to the symbol's trading rule.
//
// Invariant: the take-profit leg quantities sum to at most EntryQuantity, and
// the final leg absorbs the rounding remainder.
type OrderPlan struct {
	Symbol         string
	Side           PositionSide
	EntryQuantity  float64
	EntryPrice     float64 // reference price the plan was built against
	Leverage       int
	StopLossPrice  float64 // 0 when no stop-loss leg is planned
	TakeProfitLegs []TakeProfitLeg
	Trailing       *TrailingSpec // nil when trailing is disabled
}

// TotalTakeProfitQuantity returns the summed quantity across all TP legs.
func (p *OrderPlan) TotalTakeProfitQuantity() float64 {
	var total float64
	for _, leg := range p.TakeProfitLegs {
		total += leg.Quantity
	}
	return total
}

package models

// Quote is the canonical per-symbol price record. Each price field is
// independently nullable: nil means "never supplied by upstream", which is
// distinct from a genuine zero price.
type Quote struct {
	Bid  *float64 `json:"bid,omitempty"`
	Ask  *float64 `json:"ask,omitempty"`
	Last *float64 `json:"last,omitempty"`
	Time int64    `json:"time"` // unix milli
}

// Delta is a partial update to a Quote produced by the normalizer. A nil
// price field leaves the stored value untouched on merge.
type Delta struct {
	Symbol string
	Bid    *float64
	Ask    *float64
	Last   *float64
	Time   int64 // unix milli, already defaulted by the normalizer
}

// Float returns a pointer to v, for building deltas and expected values.
func Float(v float64) *float64 { return &v }

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which half of the bidirectional converter the user
// most recently edited.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// ConversionRequest is a user-originated request to convert an amount
// between two currencies. Direction is part of the request identity: the
// same pair and amount entered on the opposite field is a distinct request.
type ConversionRequest struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Direction Side    `json:"direction"`
}

// Valid reports whether the request may enter the pipeline. Invalid
// requests represent incomplete user input and are dropped silently.
func (r ConversionRequest) Valid() bool {
	return r.Amount > 0 && r.From != "" && r.To != "" && r.From != r.To
}

// Equal compares every field, including Direction. Used by the request
// filter for structural deduplication against the preceding request.
func (r ConversionRequest) Equal(other ConversionRequest) bool {
	return r == other
}

// CommittedRequest is a request that survived dedupe and debounce and is
// eligible for execution. The ID correlates executor logs with the request.
type CommittedRequest struct {
	ID          string            `json:"id"`
	Request     ConversionRequest `json:"request"`
	CommittedAt time.Time         `json:"committed_at"`
}

// ConversionOutcome pairs a converted value with the request that
// produced it. The two are only meaningful together.
type ConversionOutcome struct {
	Request ConversionRequest `json:"request"`
	Value   float64           `json:"value"`
}

// PreviewKey keys the preview stream. The amount is implicitly 1; the
// preview only depends on the currency pair.
type PreviewKey struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Valid reports whether the key identifies a previewable pair.
func (k PreviewKey) Valid() bool {
	return k.From != "" && k.To != "" && k.From != k.To
}

// FinanceRound rounds a converted value to two decimal places, half away
// from zero. All values surfaced to the UI layer pass through this.
func FinanceRound(value float64) float64 {
	rounded, _ := decimal.NewFromFloat(value).Round(2).Float64()
	return rounded
}

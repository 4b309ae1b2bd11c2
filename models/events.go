package models

// Event is a state transition notification consumed by the state reducer.
// Events are applied serially; producers never mutate state directly.
type Event interface {
	Type() string
}

// CatalogLoadStarted marks the start of the one-time currency catalog load.
type CatalogLoadStarted struct{}

// CatalogLoaded carries the loaded currency catalog.
type CatalogLoaded struct {
	Currencies []Currency
}

// CatalogLoadFailed reports a failed catalog load.
type CatalogLoadFailed struct {
	Message string
}

// ConversionCommitted marks a request leaving the filter for execution.
type ConversionCommitted struct {
	Request ConversionRequest
}

// ConversionSucceeded carries a settled conversion outcome.
type ConversionSucceeded struct {
	Outcome ConversionOutcome
}

// ConversionFailed reports a failed conversion call.
type ConversionFailed struct {
	Message string
}

// PreviewSucceeded carries a settled unit-rate preview value.
type PreviewSucceeded struct {
	Value float64
}

// PreviewFailed reports a failed preview call.
type PreviewFailed struct {
	Message string
}

func (CatalogLoadStarted) Type() string  { return "catalog.load.started" }
func (CatalogLoaded) Type() string       { return "catalog.load.succeeded" }
func (CatalogLoadFailed) Type() string   { return "catalog.load.failed" }
func (ConversionCommitted) Type() string { return "conversion.committed" }
func (ConversionSucceeded) Type() string { return "conversion.succeeded" }
func (ConversionFailed) Type() string    { return "conversion.failed" }
func (PreviewSucceeded) Type() string    { return "preview.succeeded" }
func (PreviewFailed) Type() string       { return "preview.failed" }

package models

// Currency describes one entry of the provider's currency catalog. The
// catalog is loaded once at session start and never mutated.
type Currency struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	ShortCode          string `json:"short_code"`
	Code               string `json:"code"`
	Precision          int    `json:"precision"`
	Subunit            int    `json:"subunit"`
	Symbol             string `json:"symbol"`
	SymbolFirst        bool   `json:"symbol_first"`
	DecimalMark        string `json:"decimal_mark"`
	ThousandsSeparator string `json:"thousands_separator"`
}

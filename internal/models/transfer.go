package models

import "github.com/shopspring/decimal"

// Transfer moves Amount between two cards identified by plaintext numbers.
// It is validated and applied within one unit of work and never persisted.
type Transfer struct {
	From   string          `json:"fromCardNumber"`
	To     string          `json:"toCardNumber"`
	Amount decimal.Decimal `json:"amount"`
}

package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of card expiry dates.
const DateLayout = "2006-01-02"

// MaxBalance is the largest balance a card can hold, NUMERIC(19,2) in Postgres.
var MaxBalance = decimal.RequireFromString("99999999999999999.99")

// CardStatus is the lifecycle state of a card.
type CardStatus string

const (
	CardActive  CardStatus = "ACTIVE"
	CardBlocked CardStatus = "BLOCKED"
)

// ParseCardStatus converts s into a known status.
func ParseCardStatus(s string) (CardStatus, error) {
	switch CardStatus(s) {
	case CardActive, CardBlocked:
		return CardStatus(s), nil
	}
	return "", fmt.Errorf("unknown card status %q", s)
}

// Card represents a bank card. Number holds ciphertext only.
type Card struct {
	ID         int64
	Number     string
	HolderName string
	ExpiryDate time.Time
	Status     CardStatus
	Balance    decimal.Decimal
	UserID     int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CardView is the card shape returned to API callers.
type CardView struct {
	ID           int64      `json:"id"`
	MaskedNumber string     `json:"maskedCardNumber"`
	HolderName   string     `json:"cardholderName"`
	ExpiryDate   string     `json:"expiryDate"`
	Status       CardStatus `json:"status"`
	Balance      string     `json:"balance"`
	UserID       int64      `json:"userId"`
}

// CardCreate carries the fields of a new card.
type CardCreate struct {
	Number         string
	HolderName     string
	ExpiryDate     time.Time
	InitialBalance *decimal.Decimal
}

// CardPatch is a partial update; nil fields are left untouched.
type CardPatch struct {
	HolderName *string
	ExpiryDate *time.Time
	Status     *CardStatus
}

// Date truncates t to a calendar day in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

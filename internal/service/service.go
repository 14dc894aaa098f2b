// Package service holds the business logic: card lifecycle, transfers,
// authentication and user administration.
package service

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/models"
	"github.com/oindividum/bankcards-service/internal/repository"
	"github.com/oindividum/bankcards-service/internal/utils"
)

// NumberCipher protects card numbers at rest.
type NumberCipher interface {
	Protect(number string) (string, error)
	Reveal(encrypted string) (string, error)
}

// Notifier informs bank operations about owner-initiated card events.
type Notifier interface {
	SendBlockRequested(username string, card models.CardView) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) SendBlockRequested(string, models.CardView) error { return nil }

var cardNumberRe = regexp.MustCompile(`^[0-9]{16}$`)

// moneyScale is the number of fraction digits balances are kept in.
const moneyScale = 2

func validCardNumber(n string) bool { return cardNumberRe.MatchString(n) }

func hasMoneyScale(d decimal.Decimal) bool { return d.Equal(d.Round(moneyScale)) }

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// storeErr wraps an unexpected store failure as an internal error.
func storeErr(log *logrus.Logger, op string, err error) error {
	log.WithError(err).Errorf("%s: store failure", op)
	return errs.Internal(err, "store unavailable")
}

// project is the only way cards leave the service layer: the stored
// ciphertext is revealed and masked, never returned as is.
func project(c NumberCipher, card models.Card) (models.CardView, error) {
	plain, err := c.Reveal(card.Number)
	if err != nil {
		return models.CardView{}, errs.Internal(err, "card number decryption failed")
	}
	return models.CardView{
		ID:           card.ID,
		MaskedNumber: utils.MaskCardNumber(plain),
		HolderName:   card.HolderName,
		ExpiryDate:   card.ExpiryDate.Format(models.DateLayout),
		Status:       card.Status,
		Balance:      card.Balance.StringFixed(moneyScale),
		UserID:       card.UserID,
	}, nil
}

func isDuplicate(err error) bool { return errors.Is(err, repository.ErrDuplicate) }

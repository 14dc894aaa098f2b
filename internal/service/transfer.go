package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/metrics"
	"github.com/oindividum/bankcards-service/internal/models"
	"github.com/oindividum/bankcards-service/internal/repository"
)

// TransferService moves funds between two cards of the same user.
type TransferService struct {
	store   repository.Store
	cipher  NumberCipher
	metrics *metrics.Metrics
	log     *logrus.Logger
}

// NewTransferService initializes a transfer service.
func NewTransferService(store repository.Store, cipher NumberCipher, m *metrics.Metrics, log *logrus.Logger) *TransferService {
	return &TransferService{store: store, cipher: cipher, metrics: m, log: log}
}

// Transfer debits t.From and credits t.To in one unit of work. Both cards
// must belong to requesterID and be ACTIVE, and the sender must hold at
// least t.Amount. On any failure neither card is changed.
func (s *TransferService) Transfer(ctx context.Context, requesterID int64, t models.Transfer) error {
	err := s.transfer(ctx, requesterID, t)
	switch {
	case err == nil:
		s.metrics.Transfers.WithLabelValues(metrics.OutcomeSuccess).Inc()
		s.metrics.TransferredAmount.Add(t.Amount.InexactFloat64())
		s.log.WithFields(logrus.Fields{"user_id": requesterID, "amount": t.Amount.StringFixed(moneyScale)}).Info("Transfer completed")
	case errs.KindOf(err) == errs.KindInternal:
		s.metrics.Transfers.WithLabelValues(metrics.OutcomeError).Inc()
	default:
		s.metrics.Transfers.WithLabelValues(metrics.OutcomeRejected).Inc()
		s.log.WithFields(logrus.Fields{"user_id": requesterID, "reason": errs.Message(err)}).Info("Transfer rejected")
	}
	return err
}

func (s *TransferService) transfer(ctx context.Context, requesterID int64, t models.Transfer) error {
	if !t.Amount.IsPositive() {
		return errs.BadRequest("transfer amount must be greater than zero")
	}
	if !hasMoneyScale(t.Amount) {
		return errs.BadRequest("transfer amount must have at most 2 decimal places")
	}
	if !validCardNumber(t.From) {
		return errs.BadRequest("sender card number must consist of 16 digits")
	}
	if !validCardNumber(t.To) {
		return errs.BadRequest("receiver card number must consist of 16 digits")
	}
	if t.From == t.To {
		return errs.BadRequest("sender and receiver cards must be different")
	}

	fromEnc, err := s.cipher.Protect(t.From)
	if err != nil {
		return errs.Internal(err, "card number encryption failed")
	}
	toEnc, err := s.cipher.Protect(t.To)
	if err != nil {
		return errs.Internal(err, "card number encryption failed")
	}

	return s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		cards, err := tx.LockCardsByNumber(ctx, fromEnc, toEnc)
		if err != nil {
			return storeErr(s.log, "transfer", err)
		}
		var from, to *models.Card
		for i := range cards {
			switch cards[i].Number {
			case fromEnc:
				from = &cards[i]
			case toEnc:
				to = &cards[i]
			}
		}

		if from == nil {
			return errs.NotFound("sender card not found")
		}
		if to == nil {
			return errs.NotFound("receiver card not found")
		}
		if from.UserID != requesterID || to.UserID != requesterID {
			return errs.Forbidden("both cards must belong to the current user")
		}
		if from.Status != models.CardActive {
			return errs.BadRequest("sender card is not active")
		}
		if to.Status != models.CardActive {
			return errs.BadRequest("receiver card is not active")
		}
		if from.Balance.LessThan(t.Amount) {
			return errs.BadRequest("insufficient funds on sender card")
		}
		if to.Balance.Add(t.Amount).GreaterThan(models.MaxBalance) {
			return errs.BadRequest("receiver card balance limit exceeded")
		}

		from.Balance = from.Balance.Sub(t.Amount)
		to.Balance = to.Balance.Add(t.Amount)
		if err := tx.SaveCard(ctx, from); err != nil {
			return storeErr(s.log, "transfer debit", err)
		}
		if err := tx.SaveCard(ctx, to); err != nil {
			return storeErr(s.log, "transfer credit", err)
		}
		return nil
	})
}

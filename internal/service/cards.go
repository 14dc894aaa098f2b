package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/metrics"
	"github.com/oindividum/bankcards-service/internal/models"
	"github.com/oindividum/bankcards-service/internal/repository"
)

// CardService manages the card lifecycle. Balances are never changed here.
type CardService struct {
	store    repository.Store
	cipher   NumberCipher
	notifier Notifier
	metrics  *metrics.Metrics
	log      *logrus.Logger
	now      func() time.Time
}

// NewCardService initializes a card service; a nil notifier disables notifications.
func NewCardService(store repository.Store, cipher NumberCipher, notifier Notifier, m *metrics.Metrics, log *logrus.Logger) *CardService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &CardService{store: store, cipher: cipher, notifier: notifier, metrics: m, log: log, now: time.Now}
}

// Create issues a new ACTIVE card to ownerID.
func (s *CardService) Create(ctx context.Context, ownerID int64, req models.CardCreate) (models.CardView, error) {
	if !validCardNumber(req.Number) {
		return models.CardView{}, errs.BadRequest("card number must consist of 16 digits")
	}
	if blank(req.HolderName) {
		return models.CardView{}, errs.BadRequest("cardholder name must not be blank")
	}
	if req.ExpiryDate.IsZero() {
		return models.CardView{}, errs.BadRequest("expiry date is required")
	}
	expiry := models.Date(req.ExpiryDate)
	if expiry.Before(models.Date(s.now())) {
		return models.CardView{}, errs.BadRequest("expiry date must be today or in the future")
	}
	balance := decimal.Zero
	if req.InitialBalance != nil {
		balance = *req.InitialBalance
	}
	if balance.IsNegative() {
		return models.CardView{}, errs.BadRequest("initial balance must not be negative")
	}
	if !hasMoneyScale(balance) {
		return models.CardView{}, errs.BadRequest("initial balance must have at most 2 decimal places")
	}
	if balance.GreaterThan(models.MaxBalance) {
		return models.CardView{}, errs.BadRequest("initial balance must not exceed %s", models.MaxBalance.StringFixed(moneyScale))
	}

	encrypted, err := s.cipher.Protect(req.Number)
	if err != nil {
		return models.CardView{}, errs.Internal(err, "card number encryption failed")
	}

	var card models.Card
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		owner, err := tx.FindUserByID(ctx, ownerID)
		if err != nil {
			return storeErr(s.log, "create card", err)
		}
		if owner == nil {
			return errs.NotFound("user not found by id %d", ownerID)
		}
		existing, err := tx.FindCardByNumber(ctx, encrypted)
		if err != nil {
			return storeErr(s.log, "create card", err)
		}
		if existing != nil {
			return errs.Conflict("a card with this number already exists")
		}

		card = models.Card{
			Number:     encrypted,
			HolderName: req.HolderName,
			ExpiryDate: expiry,
			Status:     models.CardActive,
			Balance:    balance,
			UserID:     ownerID,
		}
		if err := tx.SaveCard(ctx, &card); err != nil {
			if isDuplicate(err) {
				return errs.Conflict("a card with this number already exists")
			}
			return storeErr(s.log, "create card", err)
		}
		return nil
	})
	if err != nil {
		return models.CardView{}, err
	}

	s.log.WithFields(logrus.Fields{"card_id": card.ID, "user_id": ownerID}).Info("Card created")
	return project(s.cipher, card)
}

// Update applies the fields present in patch.
func (s *CardService) Update(ctx context.Context, cardID int64, patch models.CardPatch) (models.CardView, error) {
	if patch.HolderName != nil && blank(*patch.HolderName) {
		return models.CardView{}, errs.BadRequest("cardholder name must not be blank")
	}
	if patch.Status != nil {
		if _, err := models.ParseCardStatus(string(*patch.Status)); err != nil {
			return models.CardView{}, errs.BadRequest("unknown card status %q", *patch.Status)
		}
	}

	statusChanged := false
	view, err := s.mutate(ctx, "update card", cardID, func(card *models.Card) error {
		if patch.HolderName != nil {
			card.HolderName = *patch.HolderName
		}
		if patch.ExpiryDate != nil {
			card.ExpiryDate = models.Date(*patch.ExpiryDate)
		}
		if patch.Status != nil {
			statusChanged = card.Status != *patch.Status
			card.Status = *patch.Status
		}
		return nil
	})
	if err != nil {
		return view, err
	}
	if statusChanged {
		s.metrics.CardStatusChanges.WithLabelValues(string(*patch.Status)).Inc()
	}
	s.log.WithField("card_id", cardID).Info("Card updated")
	return view, nil
}

// Block sets the card status to BLOCKED.
func (s *CardService) Block(ctx context.Context, cardID int64) (models.CardView, error) {
	return s.setStatus(ctx, cardID, models.CardBlocked)
}

// Activate sets the card status to ACTIVE.
func (s *CardService) Activate(ctx context.Context, cardID int64) (models.CardView, error) {
	return s.setStatus(ctx, cardID, models.CardActive)
}

func (s *CardService) setStatus(ctx context.Context, cardID int64, status models.CardStatus) (models.CardView, error) {
	view, err := s.mutate(ctx, "change card status", cardID, func(card *models.Card) error {
		card.Status = status
		return nil
	})
	if err != nil {
		return view, err
	}
	s.metrics.CardStatusChanges.WithLabelValues(string(status)).Inc()
	s.log.WithFields(logrus.Fields{"card_id": cardID, "status": status}).Info("Card status changed")
	return view, nil
}

// mutate loads a card, applies fn and saves it in one unit of work.
func (s *CardService) mutate(ctx context.Context, op string, cardID int64, fn func(*models.Card) error) (models.CardView, error) {
	var card *models.Card
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		card, err = tx.FindCardByID(ctx, cardID)
		if err != nil {
			return storeErr(s.log, op, err)
		}
		if card == nil {
			return errs.NotFound("card not found by id %d", cardID)
		}
		if err := fn(card); err != nil {
			return err
		}
		if err := tx.SaveCard(ctx, card); err != nil {
			return storeErr(s.log, op, err)
		}
		return nil
	})
	if err != nil {
		return models.CardView{}, err
	}
	return project(s.cipher, *card)
}

// RequestBlock lets an owner block their own ACTIVE card.
func (s *CardService) RequestBlock(ctx context.Context, cardID, userID int64) (models.CardView, error) {
	var card *models.Card
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		card, err = tx.FindCardByIDAndOwner(ctx, cardID, userID)
		if err != nil {
			return storeErr(s.log, "request block", err)
		}
		if card == nil {
			return errs.NotFound("card not found by id %d for user %d", cardID, userID)
		}
		if card.Status == models.CardBlocked {
			return errs.Conflict("card is already blocked")
		}
		card.Status = models.CardBlocked
		if err := tx.SaveCard(ctx, card); err != nil {
			return storeErr(s.log, "request block", err)
		}
		return nil
	})
	if err != nil {
		return models.CardView{}, err
	}

	view, err := project(s.cipher, *card)
	if err != nil {
		return models.CardView{}, err
	}
	s.metrics.CardStatusChanges.WithLabelValues(string(models.CardBlocked)).Inc()
	s.log.WithFields(logrus.Fields{"card_id": cardID, "user_id": userID}).Info("Card blocked at owner request")

	username := ""
	if owner, err := s.store.FindUserByID(ctx, userID); err == nil && owner != nil {
		username = owner.Username
	}
	if err := s.notifier.SendBlockRequested(username, view); err != nil {
		s.log.WithError(err).WithField("card_id", cardID).Warn("Block request notification failed")
	}
	return view, nil
}

// Delete removes a card.
func (s *CardService) Delete(ctx context.Context, cardID int64) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		ok, err := tx.ExistsCard(ctx, cardID)
		if err != nil {
			return storeErr(s.log, "delete card", err)
		}
		if !ok {
			return errs.NotFound("card not found by id %d", cardID)
		}
		if err := tx.DeleteCard(ctx, cardID); err != nil {
			return storeErr(s.log, "delete card", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.WithField("card_id", cardID).Info("Card deleted")
	return nil
}

// Get returns any card by id.
func (s *CardService) Get(ctx context.Context, cardID int64) (models.CardView, error) {
	card, err := s.store.FindCardByID(ctx, cardID)
	if err != nil {
		return models.CardView{}, storeErr(s.log, "get card", err)
	}
	if card == nil {
		return models.CardView{}, errs.NotFound("card not found by id %d", cardID)
	}
	return project(s.cipher, *card)
}

// GetOwn returns a card only if userID owns it.
func (s *CardService) GetOwn(ctx context.Context, cardID, userID int64) (models.CardView, error) {
	card, err := s.store.FindCardByIDAndOwner(ctx, cardID, userID)
	if err != nil {
		return models.CardView{}, storeErr(s.log, "get own card", err)
	}
	if card == nil {
		return models.CardView{}, errs.NotFound("card not found by id %d for user %d", cardID, userID)
	}
	return project(s.cipher, *card)
}

// List pages through all cards.
func (s *CardService) List(ctx context.Context, page models.PageRequest) (models.Page[models.CardView], error) {
	p, err := s.store.ListCards(ctx, page)
	if err != nil {
		return models.Page[models.CardView]{}, storeErr(s.log, "list cards", err)
	}
	return models.MapPage(p, s.view)
}

// ListOwn pages through the cards of userID.
func (s *CardService) ListOwn(ctx context.Context, userID int64, page models.PageRequest) (models.Page[models.CardView], error) {
	p, err := s.store.FindCardsByOwner(ctx, userID, page)
	if err != nil {
		return models.Page[models.CardView]{}, storeErr(s.log, "list own cards", err)
	}
	return models.MapPage(p, s.view)
}

// ListAllOwn collects every card of userID.
func (s *CardService) ListAllOwn(ctx context.Context, userID int64) ([]models.CardView, error) {
	var out []models.CardView
	req := models.PageRequest{Size: models.MaxPageSize}
	for {
		p, err := s.ListOwn(ctx, userID, req)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Items...)
		if len(p.Items) == 0 || int64(len(out)) >= p.Total {
			return out, nil
		}
		req.Page++
	}
}

// ExpiredActive lists ACTIVE cards whose expiry date is before day.
func (s *CardService) ExpiredActive(ctx context.Context, day time.Time) ([]models.CardView, error) {
	cards, err := s.store.ListActiveCardsExpiringBefore(ctx, models.Date(day))
	if err != nil {
		return nil, storeErr(s.log, "list expired cards", err)
	}
	out := make([]models.CardView, 0, len(cards))
	for _, c := range cards {
		v, err := project(s.cipher, c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *CardService) view(c models.Card) (models.CardView, error) { return project(s.cipher, c) }

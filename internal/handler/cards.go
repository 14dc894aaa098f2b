package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/middleware"
	"github.com/oindividum/bankcards-service/internal/models"
	"github.com/oindividum/bankcards-service/internal/statement"
)

type createCardRequest struct {
	CardNumber     string           `json:"cardNumber"`
	CardholderName string           `json:"cardholderName"`
	ExpiryDate     string           `json:"expiryDate"`
	InitialBalance *decimal.Decimal `json:"initialBalance"`
}

type updateCardRequest struct {
	CardholderName *string `json:"cardholderName"`
	ExpiryDate     *string `json:"expiryDate"`
	Status         *string `json:"status"`
}

// CreateCard issues a card to the user in the path.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	var req createCardRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	in := models.CardCreate{Number: req.CardNumber, HolderName: req.CardholderName, InitialBalance: req.InitialBalance}
	if req.ExpiryDate != "" {
		if in.ExpiryDate, err = parseDate(req.ExpiryDate, "expiryDate"); err != nil {
			middleware.WriteError(w, err)
			return
		}
	}

	card, err := h.cards.Create(r.Context(), userID, in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, card)
}

// UpdateCard applies a partial update.
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	cardID, err := pathID(r, "cardId")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	var req updateCardRequest
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	patch := models.CardPatch{HolderName: req.CardholderName}
	if req.ExpiryDate != nil {
		d, err := parseDate(*req.ExpiryDate, "expiryDate")
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		patch.ExpiryDate = &d
	}
	if req.Status != nil {
		s, err := models.ParseCardStatus(*req.Status)
		if err != nil {
			middleware.WriteError(w, errs.BadRequest("unknown card status %q", *req.Status))
			return
		}
		patch.Status = &s
	}

	card, err := h.cards.Update(r.Context(), cardID, patch)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, card)
}

// BlockCard sets a card to BLOCKED.
func (h *Handler) BlockCard(w http.ResponseWriter, r *http.Request) {
	h.cardByID(w, r, h.cards.Block)
}

// ActivateCard sets a card to ACTIVE.
func (h *Handler) ActivateCard(w http.ResponseWriter, r *http.Request) {
	h.cardByID(w, r, h.cards.Activate)
}

// GetCard returns any card.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	h.cardByID(w, r, h.cards.Get)
}

func (h *Handler) cardByID(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (models.CardView, error)) {
	cardID, err := pathID(r, "cardId")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	card, err := fn(r.Context(), cardID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, card)
}

// DeleteCard removes a card.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID, err := pathID(r, "cardId")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.cards.Delete(r.Context(), cardID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCards pages through all cards.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	cards, err := h.cards.List(r.Context(), page)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, cards)
}

// ListMyCards pages through the caller's cards.
func (h *Handler) ListMyCards(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	cards, err := h.cards.ListOwn(r.Context(), principal(r).UserID, page)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, cards)
}

// GetMyCard returns one of the caller's cards.
func (h *Handler) GetMyCard(w http.ResponseWriter, r *http.Request) {
	cardID, err := pathID(r, "cardId")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	card, err := h.cards.GetOwn(r.Context(), cardID, principal(r).UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, card)
}

// RequestBlock blocks one of the caller's cards.
func (h *Handler) RequestBlock(w http.ResponseWriter, r *http.Request) {
	cardID, err := pathID(r, "cardId")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	card, err := h.cards.RequestBlock(r.Context(), cardID, principal(r).UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, card)
}

// Transfer moves funds between two of the caller's cards.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req models.Transfer
	if err := decode(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.transfers.Transfer(r.Context(), principal(r).UserID, req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "transfer completed"})
}

// Statement returns the caller's cards as an XML statement.
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	owner, err := h.users.Me(r.Context(), p.UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	cards, err := h.cards.ListAllOwn(r.Context(), p.UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	doc, err := statement.Render(owner, cards, h.now())
	if err != nil {
		middleware.WriteError(w, errs.Internal(err, "failed to render statement"))
		return
	}
	w.Header().Set("Content-Type", statement.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="statement-`+h.now().UTC().Format(time.DateOnly)+`.xml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// Package repository defines the account store and its backends.
//
// Lookups return a nil entity and a nil error when nothing matches; callers
// translate absence into their own not-found errors.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oindividum/bankcards-service/internal/models"
)

// ErrDuplicate is returned when a write violates a uniqueness constraint
// (username or encrypted card number).
var ErrDuplicate = errors.New("duplicate key")

// ErrNegativeBalance is returned when a card would be stored with a balance below zero.
var ErrNegativeBalance = errors.New("negative card balance")

// ErrBalanceOverflow is returned when a card balance exceeds models.MaxBalance.
var ErrBalanceOverflow = errors.New("card balance out of range")

// UserStore provides access to users.
type UserStore interface {
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// SaveUser inserts u when u.ID is zero and updates it otherwise.
	SaveUser(ctx context.Context, u *models.User) error
	// DeleteUser removes the user together with all of its cards.
	DeleteUser(ctx context.Context, id int64) error
}

// CardStore provides access to cards.
type CardStore interface {
	FindCardByID(ctx context.Context, id int64) (*models.Card, error)
	FindCardByIDAndOwner(ctx context.Context, id, userID int64) (*models.Card, error)
	FindCardByNumber(ctx context.Context, encrypted string) (*models.Card, error)
	// LockCardsByNumber returns the cards with the given encrypted numbers,
	// locked for update until the surrounding transaction ends. Locks are
	// taken in id order.
	LockCardsByNumber(ctx context.Context, encrypted ...string) ([]models.Card, error)
	FindCardsByOwner(ctx context.Context, userID int64, page models.PageRequest) (models.Page[models.Card], error)
	ListCards(ctx context.Context, page models.PageRequest) (models.Page[models.Card], error)
	ListActiveCardsExpiringBefore(ctx context.Context, day time.Time) ([]models.Card, error)
	// SaveCard inserts c when c.ID is zero and updates it otherwise.
	SaveCard(ctx context.Context, c *models.Card) error
	DeleteCard(ctx context.Context, id int64) error
	ExistsCard(ctx context.Context, id int64) (bool, error)
}

// Store is the full account store. InTx runs fn in one all-or-nothing unit
// of work: fn's writes are committed when it returns nil and discarded
// otherwise. Calling InTx on the tx store passed to fn reuses the same unit.
type Store interface {
	UserStore
	CardStore
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

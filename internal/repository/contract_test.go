package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oindividum/bankcards-service/internal/models"
)

// runStoreContract checks behavior every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("cards", func(t *testing.T) { testCards(t, newStore(t)) })
	t.Run("paging", func(t *testing.T) { testPaging(t, newStore(t)) })
	t.Run("tx rollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("cascade", func(t *testing.T) { testCascade(t, newStore(t)) })
	t.Run("expiring", func(t *testing.T) { testExpiring(t, newStore(t)) })
}

func mustUser(t *testing.T, s Store, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, PasswordHash: "hash", Role: models.RoleUser}
	require.NoError(t, s.SaveUser(context.Background(), u))
	require.NotZero(t, u.ID)
	return u
}

func mustCard(t *testing.T, s Store, owner int64, number, balance string) *models.Card {
	t.Helper()
	c := &models.Card{
		Number:     number,
		HolderName: "HOLDER",
		ExpiryDate: models.Date(time.Now().AddDate(2, 0, 0)),
		Status:     models.CardActive,
		Balance:    decimal.RequireFromString(balance),
		UserID:     owner,
	}
	require.NoError(t, s.SaveCard(context.Background(), c))
	require.NotZero(t, c.ID)
	return c
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()
	u := mustUser(t, s, "alice")

	got, err := s.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, models.RoleUser, got.Role)

	missing, err := s.FindUserByID(ctx, u.ID+100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := s.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ExistsByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	dup := &models.User{Username: "alice", PasswordHash: "x", Role: models.RoleUser}
	assert.ErrorIs(t, s.SaveUser(ctx, dup), ErrDuplicate)

	u.Role = models.RoleAdmin
	u.CardHolderName = "ALICE A"
	require.NoError(t, s.SaveUser(ctx, u))
	got, err = s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.Equal(t, "ALICE A", got.CardHolderName)

	mustUser(t, s, "bob")
	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Username)
}

func testCards(t *testing.T, s Store) {
	ctx := context.Background()
	u := mustUser(t, s, "carol")
	c := mustCard(t, s, u.ID, "enc-1", "100.00")

	got, err := s.FindCardByNumber(ctx, "enc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, decimal.RequireFromString("100").Equal(got.Balance))

	got, err = s.FindCardByIDAndOwner(ctx, c.ID, u.ID+1)
	require.NoError(t, err)
	assert.Nil(t, got)

	dup := &models.Card{Number: "enc-1", HolderName: "X", ExpiryDate: c.ExpiryDate, Status: models.CardBlocked, UserID: u.ID}
	assert.ErrorIs(t, s.SaveCard(ctx, dup), ErrDuplicate)

	c.Balance = decimal.RequireFromString("-0.01")
	assert.ErrorIs(t, s.SaveCard(ctx, c), ErrNegativeBalance)

	c.Balance = models.MaxBalance.Add(decimal.RequireFromString("0.01"))
	assert.ErrorIs(t, s.SaveCard(ctx, c), ErrBalanceOverflow)

	c.Balance = decimal.RequireFromString("42.50")
	c.Status = models.CardBlocked
	require.NoError(t, s.SaveCard(ctx, c))
	got, err = s.FindCardByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardBlocked, got.Status)
	assert.Equal(t, "42.50", got.Balance.StringFixed(2))

	other := mustCard(t, s, u.ID, "enc-2", "0")
	locked, err := s.LockCardsByNumber(ctx, "enc-2", "enc-1", "enc-missing")
	require.NoError(t, err)
	require.Len(t, locked, 2)
	assert.Equal(t, c.ID, locked[0].ID)
	assert.Equal(t, other.ID, locked[1].ID)

	ok, err := s.ExistsCard(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.DeleteCard(ctx, c.ID))
	ok, err = s.ExistsCard(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// a deleted card frees its number
	mustCard(t, s, u.ID, "enc-1", "1")
}

func testPaging(t *testing.T, s Store) {
	ctx := context.Background()
	a := mustUser(t, s, "dave")
	b := mustUser(t, s, "erin")
	for i, n := range []string{"p1", "p2", "p3", "p4", "p5"} {
		owner := a.ID
		if i == 4 {
			owner = b.ID
		}
		mustCard(t, s, owner, n, "1")
	}

	page, err := s.FindCardsByOwner(ctx, a.ID, models.PageRequest{Page: 1, Size: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "p4", page.Items[0].Number)

	page, err = s.ListCards(ctx, models.PageRequest{Page: 0, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Len(t, page.Items, 2)

	page, err = s.ListCards(ctx, models.PageRequest{Page: 9, Size: 2})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func testTxRollback(t *testing.T, s Store) {
	ctx := context.Background()
	u := mustUser(t, s, "frank")
	c := mustCard(t, s, u.ID, "tx-1", "10.00")

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx Store) error {
		card, err := tx.FindCardByID(ctx, c.ID)
		if err != nil {
			return err
		}
		card.Balance = decimal.Zero
		if err := tx.SaveCard(ctx, card); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.FindCardByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", got.Balance.StringFixed(2))

	err = s.InTx(ctx, func(ctx context.Context, tx Store) error {
		card, err := tx.FindCardByID(ctx, c.ID)
		if err != nil {
			return err
		}
		card.Balance = decimal.RequireFromString("3.00")
		return tx.InTx(ctx, func(ctx context.Context, inner Store) error {
			return inner.SaveCard(ctx, card)
		})
	})
	require.NoError(t, err)
	got, err = s.FindCardByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "3.00", got.Balance.StringFixed(2))

	assert.Panics(t, func() {
		_ = s.InTx(ctx, func(ctx context.Context, tx Store) error {
			card, err := tx.FindCardByID(ctx, c.ID)
			if err != nil {
				return err
			}
			card.Balance = decimal.Zero
			if err := tx.SaveCard(ctx, card); err != nil {
				return err
			}
			panic("fn failed mid-transaction")
		})
	})
	got, err = s.FindCardByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "3.00", got.Balance.StringFixed(2))
}

func testCascade(t *testing.T, s Store) {
	ctx := context.Background()
	u := mustUser(t, s, "grace")
	keep := mustUser(t, s, "heidi")
	c := mustCard(t, s, u.ID, "cas-1", "1")
	k := mustCard(t, s, keep.ID, "cas-2", "1")

	require.NoError(t, s.DeleteUser(ctx, u.ID))

	gone, err := s.FindCardByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	still, err := s.FindCardByID(ctx, k.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func testExpiring(t *testing.T, s Store) {
	ctx := context.Background()
	u := mustUser(t, s, "ivan")
	today := models.Date(time.Now())

	expired := mustCard(t, s, u.ID, "exp-1", "1")
	expired.ExpiryDate = today.AddDate(0, 0, -1)
	require.NoError(t, s.SaveCard(ctx, expired))

	blocked := mustCard(t, s, u.ID, "exp-2", "1")
	blocked.ExpiryDate = today.AddDate(0, -1, 0)
	blocked.Status = models.CardBlocked
	require.NoError(t, s.SaveCard(ctx, blocked))

	mustCard(t, s, u.ID, "exp-3", "1")

	got, err := s.ListActiveCardsExpiringBefore(ctx, today)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, expired.ID, got[0].ID)
}

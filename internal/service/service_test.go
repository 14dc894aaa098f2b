package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oindividum/bankcards-service/internal/auth"
	"github.com/oindividum/bankcards-service/internal/metrics"
	"github.com/oindividum/bankcards-service/internal/models"
	"github.com/oindividum/bankcards-service/internal/repository"
	"github.com/oindividum/bankcards-service/internal/utils"
)

var (
	testKey    = []byte("0123456789abcdef0123456789abcdef")
	testSecret = []byte("an-hs256-secret-of-at-least-32-bytes!")
	today      = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendBlockRequested(username string, card models.CardView) error {
	return m.Called(username, card).Error(0)
}

// brokenCipher fails every operation.
type brokenCipher struct{}

func (brokenCipher) Protect(string) (string, error) { return "", errors.New("cipher offline") }
func (brokenCipher) Reveal(string) (string, error)  { return "", errors.New("cipher offline") }

// faultyStore fails SaveCard once calls reach failOn, inside and outside transactions.
type faultyStore struct {
	repository.Store
	calls  *int
	failOn int
}

func (f faultyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return f.Store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, faultyStore{Store: tx, calls: f.calls, failOn: f.failOn})
	})
}

func (f faultyStore) SaveCard(ctx context.Context, c *models.Card) error {
	*f.calls++
	if *f.calls >= f.failOn {
		return errors.New("disk full")
	}
	return f.Store.SaveCard(ctx, c)
}

type fixture struct {
	store     repository.Store
	cipher    *utils.CardCipher
	metrics   *metrics.Metrics
	notifier  *mockNotifier
	cards     *CardService
	transfers *TransferService
	auth      *AuthService
	users     *UserService
	tokens    *auth.TokenCodec
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, repository.NewMemory())
}

func newFixtureWithStore(t *testing.T, store repository.Store) *fixture {
	t.Helper()
	cipher, err := utils.NewCardCipher(testKey)
	require.NoError(t, err)
	tokens, err := auth.NewTokenCodec(testSecret, time.Hour)
	require.NoError(t, err)

	log := quietLogger()
	m := metrics.New(prometheus.NewRegistry())
	n := &mockNotifier{}

	cards := NewCardService(store, cipher, n, m, log)
	cards.now = func() time.Time { return today }

	return &fixture{
		store:     store,
		cipher:    cipher,
		metrics:   m,
		notifier:  n,
		cards:     cards,
		transfers: NewTransferService(store, cipher, m, log),
		auth:      NewAuthService(store, auth.NewBcryptHasher(4), tokens, m, log),
		users:     NewUserService(store, log),
		tokens:    tokens,
	}
}

func (f *fixture) user(t *testing.T, name string) int64 {
	t.Helper()
	v, err := f.auth.Register(context.Background(), name, "secret-pass")
	require.NoError(t, err)
	return v.ID
}

func (f *fixture) card(t *testing.T, owner int64, number, balance string) models.CardView {
	t.Helper()
	b := decimal.RequireFromString(balance)
	v, err := f.cards.Create(context.Background(), owner, models.CardCreate{
		Number:         number,
		HolderName:     "CARD HOLDER",
		ExpiryDate:     today.AddDate(2, 0, 0),
		InitialBalance: &b,
	})
	require.NoError(t, err)
	return v
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

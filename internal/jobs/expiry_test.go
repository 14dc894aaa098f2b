package jobs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oindividum/bankcards-service/internal/models"
)

type mockCards struct{ mock.Mock }

func (m *mockCards) ExpiredActive(ctx context.Context, day time.Time) ([]models.CardView, error) {
	args := m.Called(ctx, day)
	cards, _ := args.Get(0).([]models.CardView)
	return cards, args.Error(1)
}

func (m *mockCards) Block(ctx context.Context, id int64) (models.CardView, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.CardView), args.Error(1)
}

type mockReporter struct{ mock.Mock }

func (m *mockReporter) SendExpiryReport(day time.Time, cards []models.CardView, blocked bool) error {
	return m.Called(day, cards, blocked).Error(0)
}

var (
	now = time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	day = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
)

func newSweep(cards CardSweeper, rep ReportSender, autoBlock bool) *ExpirySweep {
	log := logrus.New()
	log.SetOutput(io.Discard)
	j := NewExpirySweep(cards, rep, autoBlock, log)
	j.now = func() time.Time { return now }
	return j
}

func TestExpirySweep_BlocksAndReports(t *testing.T) {
	ctx := context.Background()
	cards := &mockCards{}
	rep := &mockReporter{}
	expired := []models.CardView{{ID: 1, Status: models.CardActive}, {ID: 2, Status: models.CardActive}}
	cards.On("ExpiredActive", ctx, day).Return(expired, nil)
	cards.On("Block", ctx, int64(1)).Return(models.CardView{ID: 1, Status: models.CardBlocked}, nil)
	cards.On("Block", ctx, int64(2)).Return(models.CardView{ID: 2, Status: models.CardBlocked}, nil)
	rep.On("SendExpiryReport", day, mock.MatchedBy(func(cs []models.CardView) bool {
		return len(cs) == 2 && cs[0].Status == models.CardBlocked && cs[1].Status == models.CardBlocked
	}), true).Return(nil)

	require.NoError(t, newSweep(cards, rep, true).Run(ctx))
	cards.AssertExpectations(t)
	rep.AssertExpectations(t)
}

func TestExpirySweep_ReportOnly(t *testing.T) {
	ctx := context.Background()
	cards := &mockCards{}
	rep := &mockReporter{}
	expired := []models.CardView{{ID: 5, Status: models.CardActive}}
	cards.On("ExpiredActive", ctx, day).Return(expired, nil)
	rep.On("SendExpiryReport", day, expired, false).Return(nil)

	require.NoError(t, newSweep(cards, rep, false).Run(ctx))
	cards.AssertNotCalled(t, "Block", mock.Anything, mock.Anything)
	rep.AssertExpectations(t)
}

func TestExpirySweep_NothingExpired(t *testing.T) {
	ctx := context.Background()
	cards := &mockCards{}
	rep := &mockReporter{}
	cards.On("ExpiredActive", ctx, day).Return(nil, nil)

	require.NoError(t, newSweep(cards, rep, true).Run(ctx))
	rep.AssertNotCalled(t, "SendExpiryReport", mock.Anything, mock.Anything, mock.Anything)
}

func TestExpirySweep_Errors(t *testing.T) {
	ctx := context.Background()

	cards := &mockCards{}
	cards.On("ExpiredActive", ctx, day).Return(nil, errors.New("db down"))
	assert.ErrorContains(t, newSweep(cards, nil, true).Run(ctx), "db down")

	cards = &mockCards{}
	rep := &mockReporter{}
	expired := []models.CardView{{ID: 1}}
	cards.On("ExpiredActive", ctx, day).Return(expired, nil)
	cards.On("Block", ctx, int64(1)).Return(models.CardView{}, errors.New("locked"))
	rep.On("SendExpiryReport", day, expired, false).Return(errors.New("smtp down"))
	assert.ErrorContains(t, newSweep(cards, rep, true).Run(ctx), "smtp down")
}

func TestExpirySweep_ServeRejectsBadSchedule(t *testing.T) {
	err := newSweep(&mockCards{}, nil, false).Serve(context.Background(), "every tuesday")
	assert.ErrorContains(t, err, "invalid expiry schedule")
}

func TestExpirySweep_ServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newSweep(&mockCards{}, nil, false).Serve(ctx, "@daily") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

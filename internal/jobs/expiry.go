// Package jobs holds the scheduled background jobs of the service.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/oindividum/bankcards-service/internal/models"
)

// CardSweeper is the part of the card service the expiry sweep needs.
type CardSweeper interface {
	ExpiredActive(ctx context.Context, day time.Time) ([]models.CardView, error)
	Block(ctx context.Context, cardID int64) (models.CardView, error)
}

// ReportSender mails the sweep summary.
type ReportSender interface {
	SendExpiryReport(day time.Time, cards []models.CardView, blocked bool) error
}

// ExpirySweep finds ACTIVE cards past their expiry date, optionally blocks
// them and reports them to the operations mailbox.
type ExpirySweep struct {
	cards     CardSweeper
	reporter  ReportSender
	autoBlock bool
	log       *logrus.Logger
	now       func() time.Time
}

// NewExpirySweep creates the job; a nil reporter skips the report.
func NewExpirySweep(cards CardSweeper, reporter ReportSender, autoBlock bool, log *logrus.Logger) *ExpirySweep {
	return &ExpirySweep{cards: cards, reporter: reporter, autoBlock: autoBlock, log: log, now: time.Now}
}

// Run performs one sweep.
func (j *ExpirySweep) Run(ctx context.Context) error {
	day := models.Date(j.now())
	cards, err := j.cards.ExpiredActive(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to list expired cards: %w", err)
	}
	if len(cards) == 0 {
		j.log.Debug("Expiry sweep: nothing to do")
		return nil
	}

	blocked := j.autoBlock
	if j.autoBlock {
		for i, c := range cards {
			v, err := j.cards.Block(ctx, c.ID)
			if err != nil {
				j.log.WithError(err).WithField("card_id", c.ID).Error("Expiry sweep: failed to block card")
				blocked = false
				continue
			}
			cards[i] = v
		}
	}
	j.log.WithFields(logrus.Fields{"expired": len(cards), "blocked": blocked}).Info("Expiry sweep finished")

	if j.reporter == nil {
		return nil
	}
	if err := j.reporter.SendExpiryReport(day, cards, blocked); err != nil {
		return fmt.Errorf("failed to send expiry report: %w", err)
	}
	return nil
}

// Serve runs the sweep on schedule until ctx is done. Overlapping runs are skipped.
func (j *ExpirySweep) Serve(ctx context.Context, schedule string) error {
	logger := cron.PrintfLogger(j.log)
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(schedule, func() {
		if err := j.Run(ctx); err != nil {
			j.log.WithError(err).Error("Expiry sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid expiry schedule %q: %w", schedule, err)
	}

	j.log.Infof("Expiry sweep scheduled: %s", schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

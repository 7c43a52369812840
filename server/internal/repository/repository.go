// Package repository stores finished session records: a local SQLite copy,
// a JSON export file, an optional S3 upload and an optional Postgres archive.
package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/metrics"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"go.uber.org/zap"
)

// Store saves a session record somewhere.
type Store interface {
	Save(ctx context.Context, rec *models.SessionRecord) error
}

// Target is a store in a Chain. Failures of a required target fail the save;
// optional ones are only logged.
type Target struct {
	Name     string
	Store    Store
	Required bool
}

// Chain saves a record to every target in order.
type Chain struct {
	log     *zap.Logger
	targets []Target
}

func NewChain(log *zap.Logger, targets ...Target) *Chain {
	return &Chain{log: log, targets: targets}
}

// Save tries every target even after a failure and returns the joined
// errors of the required ones.
func (c *Chain) Save(ctx context.Context, rec *models.SessionRecord) error {
	var errs []error
	for _, t := range c.targets {
		if err := t.Store.Save(ctx, rec); err != nil {
			metrics.PersistenceFailures.WithLabelValues(t.Name).Inc()
			c.log.Error("Failed to save session record",
				zap.String("store", t.Name),
				zap.String("session", rec.ID),
				zap.Bool("required", t.Required),
				zap.Error(err),
			)
			if t.Required {
				errs = append(errs, err)
			}
			continue
		}
		c.log.Debug("Session record saved", zap.String("store", t.Name), zap.String("session", rec.ID))
	}
	return errors.Join(errs...)
}

// Encode renders a record the way it is downloaded and exported.
func Encode(rec *models.SessionRecord) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}

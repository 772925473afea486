package announcements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conference-central/backend/internal/store"
)

const (
	// NearlySoldOutBelow is the exclusive upper bound of seats left for a
	// conference to be announced.
	NearlySoldOutBelow = 5

	messagePrefix = "Last chance to attend! The following conferences are nearly sold out: "
)

// Message builds the announcement for the given conference names, or "" for none.
func Message(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return messagePrefix + strings.Join(names, ", ")
}

// Refresher recomputes the announcement from the store.
type Refresher struct {
	store  store.Querier
	cache  Cache
	logger *zap.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(st store.Querier, cache Cache, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{store: st, cache: cache, logger: logger}
}

// Refresh stores the current announcement, clearing it when no conference is
// nearly sold out. It returns the stored message.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	names, err := r.store.ListNearlySoldOut(ctx, 0, NearlySoldOutBelow)
	if err != nil {
		return "", fmt.Errorf("list nearly sold out: %w", err)
	}
	msg := Message(names)
	if msg == "" {
		if err := r.cache.Clear(ctx); err != nil {
			return "", err
		}
		r.logger.Debug("announcement cleared")
		return "", nil
	}
	if err := r.cache.Set(ctx, msg); err != nil {
		return "", err
	}
	r.logger.Info("announcement updated", zap.Int("conferences", len(names)))
	return msg, nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("announcement refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("announcement refresher stopping")
			return
		case <-ticker.C:
		}
	}
}

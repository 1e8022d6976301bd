package presence

import (
	"context"
	"time"

	"github.com/gocomet/ridematch/pkg/logger"
)

// Entry is one live connection of a user
type Entry struct {
	UserID      string
	ConnID      string
	Role        string
	Instance    string
	ConnectedAt time.Time
	ExpiresAt   time.Time
}

// Index maps users to their live connection ids. Entries expire unless touched
// again within their TTL; a refresh simply overwrites the expiry.
type Index interface {
	// Touch creates or refreshes the entry for connID.
	Touch(ctx context.Context, e Entry, ttl time.Duration) error
	// Remove drops connID and reports how many live connections the user still has.
	Remove(ctx context.Context, userID, connID string) (int, error)
	// Connections returns the user's non-expired connection ids.
	Connections(ctx context.Context, userID string) ([]string, error)
	// Lookup returns the live entry for connID, if any.
	Lookup(ctx context.Context, userID, connID string) (Entry, bool, error)
	// Sweep deletes expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// LastSeenStore persists when a user dropped their final connection
type LastSeenStore interface {
	RecordLastSeen(ctx context.Context, userID string, at time.Time) error
}

// RunSweeper expires stale entries every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, idx Index, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := idx.Sweep(ctx)
			if err != nil {
				log.Warn("Presence sweep failed", logger.Err(err))
				continue
			}
			if n > 0 {
				log.Debug("Expired presence entries", logger.Int("count", n))
			}
		}
	}
}

package pagefind

import (
	"context"
	"sync"
	"time"

	"github.com/hazyhaar/pagefind/find"
	"github.com/hazyhaar/pagefind/observability"
)

// recentSize is how many updates the in-memory window keeps.
const recentSize = 256

// recent is a ring of the latest updates with monotonic sequence numbers.
type recent struct {
	mu   sync.Mutex
	buf  []observability.StoredUpdate
	next int64
	size int
}

func newRecent(size int) *recent {
	return &recent{size: size}
}

// Publish appends u, dropping the oldest entry when full.
func (r *recent) Publish(_ context.Context, u find.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.buf = append(r.buf, observability.StoredUpdate{Seq: r.next, Timestamp: time.Now(), Update: u})
	if len(r.buf) > r.size {
		r.buf = r.buf[len(r.buf)-r.size:]
	}
	return nil
}

// Since returns up to limit updates after seq for instanceID ("" for all).
func (r *recent) Since(instanceID string, after int64, limit int) []observability.StoredUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []observability.StoredUpdate
	for _, s := range r.buf {
		if s.Seq <= after || (instanceID != "" && s.Update.InstanceID != instanceID) {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// last returns the newest update of instanceID.
func (r *recent) last(instanceID string) (find.Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.buf) - 1; i >= 0; i-- {
		if r.buf[i].Update.InstanceID == instanceID {
			return r.buf[i].Update, true
		}
	}
	return find.Update{}, false
}

// internal/app/features/dashboard/registry.go
package dashboard

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheltrhq/sheltr/internal/app/system/clock"
	"github.com/sheltrhq/sheltr/internal/app/system/dashmetrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrViewNotFound is returned for unknown view ids and for views owned by
// another user.
var ErrViewNotFound = errors.New("dashboard view not found")

// DefaultMaxViewsPerUser bounds how many views one user may keep mounted.
const DefaultMaxViewsPerUser = 8

// View is one mounted dashboard: an Aggregator bound to the user who
// mounted it.
type View struct {
	ID        string
	UserID    primitive.ObjectID
	Agg       *dashmetrics.Aggregator
	CreatedAt time.Time

	lastSeen time.Time
	streams  int
}

// Registry tracks mounted views. It is safe for concurrent use.
type Registry struct {
	clock      clock.Clock
	log        *zap.Logger
	maxPerUser int

	mu    sync.Mutex
	views map[string]*View
}

// NewRegistry creates an empty Registry.
func NewRegistry(clk clock.Clock, logger *zap.Logger) *Registry {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		clock:      clk,
		log:        logger,
		maxPerUser: DefaultMaxViewsPerUser,
		views:      make(map[string]*View),
	}
}

// SetMaxPerUser overrides DefaultMaxViewsPerUser. n <= 0 is ignored.
func (g *Registry) SetMaxPerUser(n int) {
	if n > 0 {
		g.mu.Lock()
		g.maxPerUser = n
		g.mu.Unlock()
	}
}

// Add registers agg for userID under a new id. When the user is at the
// per-user cap, their least recently used idle views are unmounted first.
func (g *Registry) Add(userID primitive.ObjectID, agg *dashmetrics.Aggregator) *View {
	now := g.clock.Now()
	v := &View{
		ID:        uuid.NewString(),
		UserID:    userID,
		Agg:       agg,
		CreatedAt: now,
		lastSeen:  now,
	}

	g.mu.Lock()
	var evict []*View
	if owned := g.ownedLocked(userID); len(owned) >= g.maxPerUser {
		sort.Slice(owned, func(i, j int) bool { return owned[i].lastSeen.Before(owned[j].lastSeen) })
		for _, old := range owned {
			if len(owned)-len(evict) < g.maxPerUser {
				break
			}
			if old.streams > 0 {
				continue
			}
			delete(g.views, old.ID)
			evict = append(evict, old)
		}
	}
	g.views[v.ID] = v
	g.mu.Unlock()

	g.closeAll(evict, "evicted")
	return v
}

func (g *Registry) ownedLocked(userID primitive.ObjectID) []*View {
	var out []*View
	for _, v := range g.views {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out
}

// Get returns the view if userID owns it and marks it as seen.
func (g *Registry) Get(id string, userID primitive.ObjectID) (*View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.views[id]
	if !ok || v.UserID != userID {
		return nil, ErrViewNotFound
	}
	v.lastSeen = g.clock.Now()
	return v, nil
}

// Remove unmounts a view owned by userID.
func (g *Registry) Remove(id string, userID primitive.ObjectID) error {
	g.mu.Lock()
	v, ok := g.views[id]
	if !ok || v.UserID != userID {
		g.mu.Unlock()
		return ErrViewNotFound
	}
	delete(g.views, id)
	g.mu.Unlock()

	g.closeAll([]*View{v}, "removed")
	return nil
}

// StreamStarted marks a view as having a connected event stream. Views
// with a connected stream are never reaped as idle.
func (g *Registry) StreamStarted(v *View) {
	g.mu.Lock()
	v.streams++
	v.lastSeen = g.clock.Now()
	g.mu.Unlock()
}

// StreamEnded undoes StreamStarted. The idle clock restarts from now.
func (g *Registry) StreamEnded(v *View) {
	g.mu.Lock()
	if v.streams > 0 {
		v.streams--
	}
	v.lastSeen = g.clock.Now()
	g.mu.Unlock()
}

// ReapIdle unmounts views not seen for longer than maxIdle and returns how
// many it closed.
func (g *Registry) ReapIdle(maxIdle time.Duration) int {
	cutoff := g.clock.Now().Add(-maxIdle)

	g.mu.Lock()
	var idle []*View
	for id, v := range g.views {
		if v.streams == 0 && v.lastSeen.Before(cutoff) {
			delete(g.views, id)
			idle = append(idle, v)
		}
	}
	g.mu.Unlock()

	g.closeAll(idle, "idle")
	return len(idle)
}

// CloseUser unmounts every view owned by userID, for example on logout.
func (g *Registry) CloseUser(userID primitive.ObjectID) int {
	g.mu.Lock()
	owned := g.ownedLocked(userID)
	for _, v := range owned {
		delete(g.views, v.ID)
	}
	g.mu.Unlock()

	g.closeAll(owned, "signed out")
	return len(owned)
}

// CloseAll unmounts every view. Used at shutdown.
func (g *Registry) CloseAll() int {
	g.mu.Lock()
	all := make([]*View, 0, len(g.views))
	for _, v := range g.views {
		all = append(all, v)
	}
	g.views = make(map[string]*View)
	g.mu.Unlock()

	g.closeAll(all, "shutdown")
	return len(all)
}

// Len returns the number of mounted views.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.views)
}

func (g *Registry) closeAll(views []*View, reason string) {
	for _, v := range views {
		if err := v.Agg.Close(); err != nil {
			g.log.Warn("dashboard view close failed",
				zap.String("view_id", v.ID), zap.String("reason", reason), zap.Error(err))
			continue
		}
		g.log.Debug("dashboard view unmounted",
			zap.String("view_id", v.ID),
			zap.String("user_id", v.UserID.Hex()),
			zap.String("reason", reason))
	}
}

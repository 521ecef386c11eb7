// Package budget owns each user's monthly budget. It is the single place
// the value is read and written; views that display it subscribe here
// instead of listening for ad hoc broadcast events.
package budget

import (
	"context"
	"errors"
	"sync"

	"github.com/sheltrhq/sheltr/internal/domain/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNegative is returned when a negative budget is set.
var ErrNegative = errors.New("budget must not be negative")

// Persister loads and saves budgets. settingsstore.Store satisfies it.
type Persister interface {
	Get(ctx context.Context, userID primitive.ObjectID) (models.UserSettings, error)
	SaveBudget(ctx context.Context, userID primitive.ObjectID, budget decimal.Decimal) (models.UserSettings, error)
}

// Store caches budgets and fans out changes to subscribers.
type Store struct {
	p Persister

	mu    sync.Mutex
	cache map[primitive.ObjectID]decimal.Decimal
	subs  map[primitive.ObjectID]map[int]chan decimal.Decimal
	next  int
}

// New creates a Store backed by p.
func New(p Persister) *Store {
	return &Store{
		p:     p,
		cache: make(map[primitive.ObjectID]decimal.Decimal),
		subs:  make(map[primitive.ObjectID]map[int]chan decimal.Decimal),
	}
}

// Get returns the user's budget, loading it on first use.
func (s *Store) Get(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error) {
	s.mu.Lock()
	v, ok := s.cache[userID]
	s.mu.Unlock()
	if ok {
		return v, nil
	}

	settings, err := s.p.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	// A concurrent Set wins over the value just loaded.
	if cur, ok := s.cache[userID]; ok {
		s.mu.Unlock()
		return cur, nil
	}
	s.cache[userID] = settings.MonthlyBudget
	s.mu.Unlock()
	return settings.MonthlyBudget, nil
}

// Set persists the budget and then notifies the user's subscribers.
func (s *Store) Set(ctx context.Context, userID primitive.ObjectID, v decimal.Decimal) error {
	if v.IsNegative() {
		return ErrNegative
	}
	if _, err := s.p.SaveBudget(ctx, userID, v); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[userID] = v
	for _, ch := range s.subs[userID] {
		// Latest value wins for slow readers.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
	return nil
}

// Subscribe returns a channel receiving the user's budget after every Set.
// The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe(userID primitive.ObjectID) (<-chan decimal.Decimal, func()) {
	ch := make(chan decimal.Decimal, 1)

	s.mu.Lock()
	id := s.next
	s.next++
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]chan decimal.Decimal)
	}
	s.subs[userID][id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[userID], id)
			if len(s.subs[userID]) == 0 {
				delete(s.subs, userID)
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions for userID.
func (s *Store) Subscribers(userID primitive.ObjectID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[userID])
}

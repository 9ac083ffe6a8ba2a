// Package optimistic applies user actions locally before the server confirms
// them, and reverts them when it does not.
package optimistic

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pders01/rdt/internal/debuglog"
	"github.com/pders01/rdt/internal/event"
	"github.com/pders01/rdt/internal/model"
)

// Items gives the mutator access to loaded feed items.
type Items interface {
	Item(id string) (model.FeedItem, bool)
	Mutate(id string, fn func(*model.FeedItem)) (model.FeedItem, bool)
}

// Voter sends votes to the server.
type Voter interface {
	Vote(ctx context.Context, fullname string, dir model.Direction) error
}

// SubscriptionAPI sends subscription and favorite changes to the server.
type SubscriptionAPI interface {
	SetSubscription(ctx context.Context, name string, subscribed bool) error
	SetFavorite(ctx context.Context, name string, favorite bool) error
}

// SubscriptionStore holds the local subscription state the toggles act on.
type SubscriptionStore interface {
	State(name string) (model.SubscriptionState, bool)
	SetState(name string, st model.SubscriptionState)
	// Confirmed is called once the server has accepted st.
	Confirmed(name string, st model.SubscriptionState)
}

// Outcome reports how a mutation resolved. Exactly one is delivered per
// call.
type Outcome struct {
	Key       string
	Confirmed bool
	Reverted  bool
	Err       error

	// Prior is the vote state before a vote was applied.
	Prior model.VoteState
	// PriorSubscription is the state before a subscription or favorite
	// toggle was applied.
	PriorSubscription model.SubscriptionState
}

// Mutator serializes mutations per key. A request for a key that already
// has one in flight waits its turn and computes its change only after the
// earlier one resolves.
type Mutator struct {
	items Items
	voter Voter
	subs  SubscriptionAPI
	store SubscriptionStore
	bus   *event.Bus

	mu    sync.Mutex
	slots map[string]chan struct{}
	wg    sync.WaitGroup
}

// New creates a mutator. voter and subs may be nil for read-only sessions;
// store may be nil when subscription toggles are not used.
func New(items Items, voter Voter, subs SubscriptionAPI, store SubscriptionStore, bus *event.Bus) *Mutator {
	return &Mutator{
		items: items,
		voter: voter,
		subs:  subs,
		store: store,
		bus:   bus,
		slots: make(map[string]chan struct{}),
	}
}

// op describes one optimistic mutation.
type op struct {
	key    string
	label  string
	apply  func(*Outcome) error
	remote func(context.Context) error
	revert func()
	commit func()
}

// Vote applies dir to the item and sends it. Requesting the current
// direction clears the vote.
func (m *Mutator) Vote(ctx context.Context, itemID string, dir model.Direction) <-chan Outcome {
	var prior, next model.VoteState
	return m.run(ctx, op{
		key:   "vote:" + itemID,
		label: "Vote",
		apply: func(out *Outcome) error {
			if m.voter == nil {
				return model.ErrReadOnly
			}
			it, ok := m.items.Item(itemID)
			if !ok {
				return fmt.Errorf("item %s: %w", itemID, model.ErrNotFound)
			}
			prior = it.Vote
			next = prior.Toward(dir)
			out.Prior = prior
			m.items.Mutate(itemID, func(it *model.FeedItem) { it.Vote = next })
			return nil
		},
		remote: func(ctx context.Context) error {
			return m.voter.Vote(ctx, itemID, next.Dir)
		},
		revert: func() {
			m.items.Mutate(itemID, func(it *model.FeedItem) { it.Vote = prior })
		},
	})
}

// ToggleSeen flips the item's seen flag locally. There is nothing to
// confirm or revert.
func (m *Mutator) ToggleSeen(itemID string) (model.FeedItem, bool) {
	return m.items.Mutate(itemID, func(it *model.FeedItem) { it.Seen = !it.Seen })
}

// MarkSeen sets the seen flag without toggling.
func (m *Mutator) MarkSeen(itemID string) (model.FeedItem, bool) {
	return m.items.Mutate(itemID, func(it *model.FeedItem) { it.Seen = true })
}

// ToggleSubscription subscribes to or unsubscribes from name.
func (m *Mutator) ToggleSubscription(ctx context.Context, name string) <-chan Outcome {
	return m.toggleState(ctx, name, "Subscription",
		func(st *model.SubscriptionState) { st.Subscribed = !st.Subscribed },
		func(ctx context.Context, st model.SubscriptionState) error {
			return m.subs.SetSubscription(ctx, name, st.Subscribed)
		})
}

// ToggleFavorite adds name to or removes it from favorites.
func (m *Mutator) ToggleFavorite(ctx context.Context, name string) <-chan Outcome {
	return m.toggleState(ctx, name, "Favorite",
		func(st *model.SubscriptionState) { st.Favorited = !st.Favorited },
		func(ctx context.Context, st model.SubscriptionState) error {
			return m.subs.SetFavorite(ctx, name, st.Favorited)
		})
}

func (m *Mutator) toggleState(ctx context.Context, name, label string,
	flip func(*model.SubscriptionState),
	send func(context.Context, model.SubscriptionState) error,
) <-chan Outcome {
	var prior, next model.SubscriptionState
	return m.run(ctx, op{
		key:   "sr:" + strings.ToLower(name),
		label: label,
		apply: func(out *Outcome) error {
			if m.subs == nil || m.store == nil {
				return model.ErrReadOnly
			}
			prior, _ = m.store.State(name)
			next = prior
			flip(&next)
			out.PriorSubscription = prior
			m.store.SetState(name, next)
			return nil
		},
		remote: func(ctx context.Context) error {
			return send(ctx, next)
		},
		revert: func() {
			m.store.SetState(name, prior)
		},
		commit: func() {
			m.store.Confirmed(name, next)
		},
	})
}

// Wait blocks until every queued mutation has resolved.
func (m *Mutator) Wait() {
	m.wg.Wait()
}

func (m *Mutator) run(ctx context.Context, o op) <-chan Outcome {
	out := make(chan Outcome, 1)
	prev, done := m.acquire(o.key)
	m.wg.Add(1)

	if prev == nil {
		res := Outcome{Key: o.key}
		err := o.apply(&res)
		go m.finish(ctx, o, res, err, done, out)
		return out
	}

	debuglog.Debugf("mutation %s queued behind in-flight request", o.key)
	go func() {
		<-prev
		res := Outcome{Key: o.key}
		err := ctx.Err()
		if err == nil {
			err = o.apply(&res)
		}
		m.finish(ctx, o, res, err, done, out)
	}()
	return out
}

func (m *Mutator) finish(ctx context.Context, o op, res Outcome, applyErr error, done chan struct{}, out chan<- Outcome) {
	defer m.wg.Done()

	if applyErr != nil {
		res.Err = applyErr
		m.release(o.key, done)
		out <- res
		return
	}

	if err := o.remote(ctx); err != nil {
		o.revert()
		res.Reverted = true
		res.Err = err
		debuglog.Warnf("mutation %s failed, reverted: %v", o.key, err)
		m.bus.Notify(event.NoticeError, fmt.Sprintf("%s failed: %v", o.label, err))
	} else {
		if o.commit != nil {
			o.commit()
		}
		res.Confirmed = true
	}
	m.release(o.key, done)
	out <- res
}

// acquire takes the next position in key's queue. prev is nil when the key
// is idle; otherwise it closes when the previous holder releases.
func (m *Mutator) acquire(key string) (prev <-chan struct{}, done chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	done = make(chan struct{})
	if p, ok := m.slots[key]; ok {
		prev = p
	}
	m.slots[key] = done
	return prev, done
}

func (m *Mutator) release(key string, done chan struct{}) {
	m.mu.Lock()
	if m.slots[key] == done {
		delete(m.slots, key)
	}
	m.mu.Unlock()
	close(done)
}

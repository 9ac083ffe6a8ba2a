// Package event carries state-change notifications from the core to whatever
// renders it. Publishers never block; slow subscribers lose events.
package event

import (
	"sync"

	"github.com/pders01/rdt/internal/debuglog"
)

// Event is any value published on a Bus.
type Event interface {
	isEvent()
}

// FeedChanged is published when a loader commits new items, cursor, loading
// state or error.
type FeedChanged struct {
	Subreddit string
}

// ItemChanged is published when a single item is mutated in place.
type ItemChanged struct {
	Subreddit string
	ItemID    string
}

// SubscriptionChanged is published when a subreddit's subscription state moves.
type SubscriptionChanged struct {
	Name string
}

// NoticeKind indicates severity for transient notifications.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeSuccess
	NoticeWarn
	NoticeError
)

// Notice is a transient message for the notification area.
type Notice struct {
	Kind NoticeKind
	Text string
}

func (FeedChanged) isEvent()         {}
func (ItemChanged) isEvent()         {}
func (SubscriptionChanged) isEvent() {}
func (Notice) isEvent()              {}

const defaultBuffer = 64

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, defaultBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber without blocking. A nil bus is a
// valid no-op publisher.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			debuglog.Warnf("event bus: dropping %T for slow subscriber", ev)
		}
	}
}

// Notify publishes a Notice.
func (b *Bus) Notify(kind NoticeKind, text string) {
	b.Publish(Notice{Kind: kind, Text: text})
}

// Package events is an in-process bus announcing partition lifecycle
// changes: creation by a partition router, archival and restore.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of an event.
type Kind int

const (
	PartitionCreated Kind = iota
	PartitionArchived
	PartitionRestored
)

func (k Kind) String() string {
	switch k {
	case PartitionCreated:
		return "partition_created"
	case PartitionArchived:
		return "partition_archived"
	case PartitionRestored:
		return "partition_restored"
	}
	return "unknown"
}

// Event describes one change to a partition.
type Event struct {
	Kind      Kind
	Entity    string
	Partition string
	// Key is the partition function output for PartitionCreated, the
	// object path for PartitionArchived and PartitionRestored.
	Key  string
	Rows int64
	Time time.Time
}

// Bus fans events out to subscribers.
type Bus struct {
	subscribers sync.Map
	bufferSize  int
}

// NewBus returns a bus giving every subscriber a channel of bufferSize.
func NewBus(bufferSize int) *Bus {
	return &Bus{bufferSize: bufferSize}
}

// Publish sends ev to every matching subscriber. It never blocks: an event
// is dropped for a subscriber whose channel is full. Publishing on a nil
// bus does nothing.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.subscribers.Range(func(_, value any) bool {
		sub := value.(*Subscription)
		if sub.matches(ev.Entity) {
			select {
			case sub.ch <- ev:
			default:
			}
		}
		return true
	})
}

// Subscribe registers a subscriber receiving the events of the given
// entities, or of every entity when none is given.
func (b *Bus) Subscribe(entities ...string) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		Entities: entities,
		ch:       make(chan Event, b.bufferSize),
	}
	b.subscribers.Store(sub.ID, sub)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	if value, ok := b.subscribers.LoadAndDelete(id); ok {
		close(value.(*Subscription).ch)
	}
}

// Subscription is one subscriber of a bus.
type Subscription struct {
	ID       string
	Entities []string
	ch       chan Event
}

// C returns the channel delivering the events. It is closed by
// Bus.Unsubscribe.
func (s *Subscription) C() <-chan Event { return s.ch }

func (s *Subscription) matches(entity string) bool {
	if len(s.Entities) == 0 {
		return true
	}
	for _, e := range s.Entities {
		if e == entity {
			return true
		}
	}
	return false
}

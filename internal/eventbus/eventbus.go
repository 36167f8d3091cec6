// Package eventbus implements the per-location publish channel: count
// updates, notifications, and status transitions fanned out to every
// subscriber for a location. The subscription bookkeeping (a set of
// subscriptions behind a RWMutex, synchronous delivery to preserve
// ordering, best-effort drop on a full channel) is carried over from this
// codebase's detection-result event bus, generalized from one detection
// event type to the three event kinds the specification names.
package eventbus

import "sync"

// Kind distinguishes the three event shapes a location can publish.
type Kind string

const (
	KindCount        Kind = "count"
	KindNotification Kind = "notification"
	KindStatus       Kind = "status"
)

// NotificationType is the severity of a notification event.
type NotificationType string

const (
	NotificationPrimary NotificationType = "primary"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationDanger  NotificationType = "danger"
)

// Status is the engine lifecycle status carried by a status event.
type Status string

const (
	StatusStarted Status = "started"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// CountEvent is the `{location}_count` payload.
type CountEvent struct {
	Total   int `json:"total"`
	Current int `json:"current"`
	Defect  int `json:"defect"`
	Correct int `json:"correct"`
}

// NotificationEvent is the `{location}_notification` payload.
type NotificationEvent struct {
	Type    NotificationType `json:"type"`
	Message string           `json:"message"`
}

// StatusEvent is the `counter_status_event` payload.
type StatusEvent struct {
	Status   Status `json:"status"`
	Location string `json:"location"`
}

// Event is one published message, carrying exactly one of the three
// payload kinds.
type Event struct {
	Location string
	Kind     Kind
	Count    *CountEvent
	Notify   *NotificationEvent
	Status   *StatusEvent
}

type subscription struct {
	location string
	channel  chan Event
}

// Bus is the per-location publish/subscribe channel. Delivery is
// best-effort: a subscriber whose channel is full misses that event
// rather than blocking the publisher.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[*subscription]bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscriptions: make(map[*subscription]bool)}
}

// Subscribe returns a channel receiving every event published for
// location, and an unsubscribe function. bufferSize <= 0 defaults to 32.
func (b *Bus) Subscribe(location string, bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	sub := &subscription{location: location, channel: make(chan Event, bufferSize)}

	b.mu.Lock()
	b.subscriptions[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscriptions[sub]; ok {
			delete(b.subscriptions, sub)
			close(sub.channel)
		}
		b.mu.Unlock()
	}
	return sub.channel, unsubscribe
}

// PublishCount emits a `{location}_count` event.
func (b *Bus) PublishCount(location string, e CountEvent) {
	b.publish(Event{Location: location, Kind: KindCount, Count: &e})
}

// PublishNotification emits a `{location}_notification` event.
func (b *Bus) PublishNotification(location string, e NotificationEvent) {
	b.publish(Event{Location: location, Kind: KindNotification, Notify: &e})
}

// PublishStatus emits a `counter_status_event` event.
func (b *Bus) PublishStatus(location string, e StatusEvent) {
	b.publish(Event{Location: location, Kind: KindStatus, Status: &e})
}

// publish fans out to every subscriber of location. Delivery is
// synchronous within this call so that events published back-to-back by
// one ingestion goroutine arrive at each subscriber in that same order —
// "ordered per subscriber per kind" follows from publishing in ingestion
// order and never reordering within a single subscriber's channel.
func (b *Bus) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscriptions {
		if sub.location != ev.Location {
			continue
		}
		select {
		case sub.channel <- ev:
		default:
			// Subscriber is slow; drop rather than block the producer.
		}
	}
}

// SubscriberCount reports how many subscriptions are active for location.
func (b *Bus) SubscriberCount(location string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for sub := range b.subscriptions {
		if sub.location == location {
			n++
		}
	}
	return n
}

// Close unsubscribes and closes every channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscriptions {
		close(sub.channel)
		delete(b.subscriptions, sub)
	}
}

// Package notification provides the notification manager for broadcasting playback events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/zonebox/internal/app/playback"
)

// Notification is a playback event as seen by subscribers.
type Notification struct {
	SequenceNo uint64        `json:"sequenceNo"`
	Type       string        `json:"type"`
	PlaylistID string        `json:"playlistId"`
	TrackID    string        `json:"trackId,omitempty"`
	TrackName  string        `json:"trackName,omitempty"`
	TrackPath  string        `json:"trackPath,omitempty"`
	State      string        `json:"state"`
	Fade       time.Duration `json:"fade"`
	Loop       bool          `json:"loop"`
	At         time.Time     `json:"at"`
}

// FromEvent converts a playback event into a notification without a sequence number.
func FromEvent(e playback.Event) *Notification {
	n := &Notification{
		Type:       e.Type.String(),
		PlaylistID: e.PlaylistID,
		State:      e.State.String(),
		Fade:       e.Options.Fade,
		Loop:       e.Options.Loop,
		At:         e.At,
	}
	if e.Track != nil {
		n.TrackID = e.Track.ID
		n.TrackName = e.Track.Name
		n.TrackPath = e.Track.Path
	}
	return n
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   500 * time.Millisecond,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps the next sequence number on the notification and sends it
// to all subscribers. Slow subscribers are skipped after a timeout.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.NextSequenceNo()

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed: subscription_id=%s error=%v", s.id, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: subscription_id=%s", s.id)
			}
		}(sub)
	}
	wg.Wait()
}

// Forward broadcasts playback events until the channel closes or ctx is done.
// onEvent, if set, is called after each broadcast.
func (m *Manager) Forward(ctx context.Context, events <-chan playback.Event, onEvent func(playback.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.Broadcast(FromEvent(e))
			if onEvent != nil {
				onEvent(e)
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

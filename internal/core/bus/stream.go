// If you are AI: This file implements the Stream type that manages publisher and subscribers.
// A stream allows exactly one publisher and multiple subscribers with efficient fanout.

package bus

import (
	"sync"
)

// Stream represents a live media stream instance.
// It manages one publisher and multiple subscribers with efficient message fanout.
// Lock expectations: Uses mutex for publisher/subscriber management.
// Allocation: Publish copies the subscriber list into a new slice per message.
type Stream struct {
	key         StreamKey
	mu          sync.RWMutex
	publisher   *Publisher
	subscribers map[uint64]*Subscriber
	nextSubID   uint64

	// Cached sequence headers/metadata, replayed to each new subscriber so a
	// late joiner can decode the stream without waiting for the publisher's
	// next keyframe. The video and audio sequence headers are
	// first-message-wins: a later sequence header of the same type does not
	// replace them. Metadata is replaced by each new metadata message.
	cachedMetadata  *MediaMessage
	cachedVideoInit *MediaMessage
	cachedAudioInit *MediaMessage

	// onEmpty, if set, is called after a detach leaves the stream with no
	// publisher and no subscribers, so the owning registry can garbage
	// collect it.
	onEmpty func()
}

// Publisher represents a stream publisher.
// Only one publisher can be attached to a stream at a time.
type Publisher struct {
	id uint64 // Unique publisher ID
}

// NewStream creates a new stream with the given key.
func NewStream(key StreamKey) *Stream {
	return &Stream{
		key:         key,
		subscribers: make(map[uint64]*Subscriber),
		nextSubID:   1,
	}
}

// Key returns the stream's key.
func (s *Stream) Key() StreamKey {
	return s.key
}

// SetOnEmpty registers a callback invoked after a detach leaves the stream
// with no publisher and no subscribers.
func (s *Stream) SetOnEmpty(fn func()) {
	s.mu.Lock()
	s.onEmpty = fn
	s.mu.Unlock()
}

// checkEmpty invokes onEmpty if the stream has become empty. Must be called
// without s.mu held.
func (s *Stream) checkEmpty() {
	s.mu.RLock()
	empty := s.publisher == nil && len(s.subscribers) == 0
	onEmpty := s.onEmpty
	s.mu.RUnlock()
	if empty && onEmpty != nil {
		onEmpty()
	}
}

// AttachPublisher attaches a publisher to the stream.
// Returns true if attached, false if a publisher is already attached.
func (s *Stream) AttachPublisher(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.publisher != nil {
		return false
	}

	s.publisher = &Publisher{id: id}
	return true
}

// DetachPublisher detaches the current publisher from the stream and clears
// its cached sequence headers, since a future publisher must supply fresh
// ones before any subscriber can decode again.
func (s *Stream) DetachPublisher() {
	s.mu.Lock()
	s.publisher = nil
	s.cachedMetadata = nil
	s.cachedVideoInit = nil
	s.cachedAudioInit = nil
	s.mu.Unlock()
	s.checkEmpty()
}

// HasPublisher returns true if a publisher is currently attached.
func (s *Stream) HasPublisher() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publisher != nil
}

// AttachSubscriber attaches a new subscriber to the stream and replays any
// cached sequence headers/metadata into its buffer before returning, so a
// late joiner can start decoding immediately.
func (s *Stream) AttachSubscriber(capacity uint32, strategy BackpressureStrategy) (*Subscriber, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++

	sub := NewSubscriber(id, capacity, strategy)
	for _, cached := range []*MediaMessage{s.cachedMetadata, s.cachedVideoInit, s.cachedAudioInit} {
		if cached != nil {
			sub.Buffer().Write(cached)
		}
	}
	s.subscribers[id] = sub
	return sub, id
}

// DetachSubscriber detaches a subscriber from the stream.
func (s *Stream) DetachSubscriber(id uint64) {
	s.mu.Lock()
	delete(s.subscribers, id)
	s.mu.Unlock()
	s.checkEmpty()
}

// Publish delivers a message to all subscribers.
// Lock expectations: the write lock is held while the caches are updated and
// the subscriber list is copied; the ring-buffer writes happen after it is
// released.
// Allocation: one slice per call for the subscriber-list copy; the message
// itself is shared by every subscriber, not copied.
func (s *Stream) Publish(msg *MediaMessage) {
	if msg == nil {
		return
	}

	s.mu.Lock()
	if msg.IsInit {
		switch msg.Type {
		case MessageTypeMetadata:
			s.cachedMetadata = msg
		case MessageTypeVideo:
			if s.cachedVideoInit == nil {
				s.cachedVideoInit = msg
			}
		case MessageTypeAudio:
			if s.cachedAudioInit == nil {
				s.cachedAudioInit = msg
			}
		}
	}
	subs := make([]*Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	// Fanout to all subscribers
	// NOTE: Each subscriber gets a reference to the same message.
	// Subscribers must not modify the message. Ownership remains with publisher
	// until all subscribers have processed it.
	for _, sub := range subs {
		// Write to subscriber's buffer (non-blocking)
		sub.Buffer().Write(msg)
	}
}

// SubscriberCount returns the number of active subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// IsEmpty returns true if the stream has no publisher and no subscribers.
func (s *Stream) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publisher == nil && len(s.subscribers) == 0
}

// DroppedTotal returns the sum of messages dropped for backpressure across
// every currently attached subscriber.
func (s *Stream) DroppedTotal() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, sub := range s.subscribers {
		total += sub.Dropped()
	}
	return total
}

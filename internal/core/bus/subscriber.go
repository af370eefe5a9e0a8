// Subscriber is the bus-side half of a stream consumer: the RTMP play loop
// and the websocket egress handler each attach one per connection and pull
// from its ring buffer at their own pace.
package bus

// Subscriber represents a consumer of media messages from a stream.
// Each subscriber has its own ring buffer to avoid blocking the publisher.
type Subscriber struct {
	id     uint64      // Unique subscriber ID
	buffer *RingBuffer // Bounded buffer for message delivery
}

// NewSubscriber creates a new subscriber with the specified buffer capacity and strategy.
func NewSubscriber(id uint64, capacity uint32, strategy BackpressureStrategy) *Subscriber {
	return &Subscriber{
		id:     id,
		buffer: NewRingBuffer(capacity, strategy),
	}
}

// ID returns the unique subscriber identifier.
func (s *Subscriber) ID() uint64 {
	return s.id
}

// Buffer returns the subscriber's ring buffer. Callers (the RTMP play loop,
// the websocket egress subscriber) drain it by polling Read directly rather
// than through a push callback.
func (s *Subscriber) Buffer() *RingBuffer {
	return s.buffer
}

// Dropped returns the number of messages dropped due to backpressure.
func (s *Subscriber) Dropped() uint64 {
	return s.buffer.Dropped()
}

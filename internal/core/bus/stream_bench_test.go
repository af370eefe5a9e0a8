// Benchmarks cover the steady-state cost of the operations the testable
// properties depend on: fan-out publish, pooled message/payload reuse, and
// drop accounting under sustained overflow.

package bus

import (
	"testing"
)

func BenchmarkPublishSingleSubscriberDrained(b *testing.B) {
	stream := NewStream(NewStreamKey("live", "bench"))
	stream.AttachPublisher(1)
	sub, _ := stream.AttachSubscriber(1000, BackpressureDropOldest)

	msg := AcquireMessage()
	msg.Type = MessageTypeVideo
	msg.SetPayload(make([]byte, 1024))
	defer ReleaseMessage(msg)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		msg.Timestamp = uint32(i)
		stream.Publish(msg)
		sub.Buffer().Read()
	}
}

func BenchmarkPublishTenSubscribersDrained(b *testing.B) {
	stream := NewStream(NewStreamKey("live", "bench"))
	stream.AttachPublisher(1)

	subs := make([]*Subscriber, 10)
	for i := range subs {
		sub, _ := stream.AttachSubscriber(1000, BackpressureDropOldest)
		subs[i] = sub
	}

	msg := AcquireMessage()
	msg.Type = MessageTypeVideo
	msg.SetPayload(make([]byte, 1024))
	defer ReleaseMessage(msg)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		msg.Timestamp = uint32(i)
		stream.Publish(msg)
		for _, sub := range subs {
			sub.Buffer().Read()
		}
	}
}

// BenchmarkPublishUndrainedOverflow measures fan-out cost when no
// subscriber drains its queue, so every publish past the initial capacity
// fill takes the drop-accounting path exercised by testable property 8.
func BenchmarkPublishUndrainedOverflow(b *testing.B) {
	stream := NewStream(NewStreamKey("live", "bench"))
	stream.AttachPublisher(1)

	for i := 0; i < 10; i++ {
		stream.AttachSubscriber(64, BackpressureDropOldest)
	}

	msg := AcquireMessage()
	msg.Type = MessageTypeVideo
	msg.SetPayload(make([]byte, 1024))
	defer ReleaseMessage(msg)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		msg.Timestamp = uint32(i)
		stream.Publish(msg)
	}
}

func BenchmarkMessagePoolAcquireRelease(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		msg := AcquireMessage()
		msg.Type = MessageTypeVideo
		msg.Timestamp = uint32(i)
		ReleaseMessage(msg)
	}
}

func BenchmarkPayloadPoolAcquireRelease(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := AcquirePayload()
		buf = append(buf, make([]byte, 1024)...)
		ReleasePayload(buf)
	}
}

// BenchmarkRegistryGetOrCreateHit measures the cost of the common case
// where a stream already exists, which is the hot path for every
// subsequent play/publish lookup against a long-running stream.
func BenchmarkRegistryGetOrCreateHit(b *testing.B) {
	reg := NewRegistry()
	key := NewStreamKey("live", "bench")
	reg.GetOrCreate(key)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		reg.GetOrCreate(key)
	}
}

// Stream tests anchor on the fan-out and late-join invariants: every
// subscriber attached before a publish sees the same payload bytes, and a
// subscriber attached after cached headers exist receives those headers
// first, in order, ahead of anything published afterward.

package bus

import (
	"testing"
)

func TestStreamStartsEmptyWithNoPublisherOrSubscribers(t *testing.T) {
	key := NewStreamKey("live", "test")
	stream := NewStream(key)

	if stream.Key() != key {
		t.Error("Key() must return the key the stream was constructed with")
	}
	if stream.HasPublisher() {
		t.Error("a freshly constructed stream must report no publisher")
	}
	if stream.SubscriberCount() != 0 {
		t.Error("a freshly constructed stream must report zero subscribers")
	}
	if !stream.IsEmpty() {
		t.Error("a freshly constructed stream must report IsEmpty() true")
	}
}

func TestPublisherExclusivityAndReattach(t *testing.T) {
	stream := NewStream(NewStreamKey("live", "test"))

	if !stream.AttachPublisher(1) {
		t.Fatal("the first publisher must attach successfully")
	}
	if stream.AttachPublisher(2) {
		t.Error("a second publisher must be rejected while one is already attached")
	}

	stream.DetachPublisher()
	if stream.HasPublisher() {
		t.Error("HasPublisher must report false immediately after DetachPublisher")
	}
	if !stream.AttachPublisher(3) {
		t.Error("a new publisher must be able to attach once the previous one detached")
	}
}

// TestFanOutDeliversSamePayloadToEverySubscriber exercises testable
// property 5 (fan-out fairness): every subscriber attached before a
// publish event receives a message referencing the identical payload
// bytes, not a copy.
func TestFanOutDeliversSamePayloadToEverySubscriber(t *testing.T) {
	stream := NewStream(NewStreamKey("live", "test"))

	const subscriberCount = 5
	subs := make([]*Subscriber, subscriberCount)
	for i := range subs {
		sub, _ := stream.AttachSubscriber(10, BackpressureDropOldest)
		subs[i] = sub
	}

	msg := AcquireMessage()
	msg.Type = MessageTypeVideo
	msg.Timestamp = 1234
	msg.SetPayload([]byte("keyframe"))
	defer ReleaseMessage(msg)

	stream.Publish(msg)

	for i, sub := range subs {
		got, ok := sub.Buffer().Read()
		if !ok {
			t.Fatalf("subscriber %d did not receive the published message", i)
		}
		if got != msg {
			t.Errorf("subscriber %d got a different message instance, fan-out must not copy payload storage", i)
		}
	}
}

// TestLateJoinReplaysCachedHeadersBeforeLiveMessages exercises testable
// property 6 (late-join invariant): a subscriber attached after the
// publisher has sent metadata, an audio init, and a video init receives
// those three first, in the cache replay order metadata, video init, audio
// init, ahead of anything published after it attaches.
func TestLateJoinReplaysCachedHeadersBeforeLiveMessages(t *testing.T) {
	stream := NewStream(NewStreamKey("live", "test"))
	stream.AttachPublisher(1)

	meta := AcquireMessage()
	meta.Type = MessageTypeMetadata
	meta.IsInit = true
	meta.SetPayload([]byte("onMetaData"))

	audioInit := AcquireMessage()
	audioInit.Type = MessageTypeAudio
	audioInit.IsInit = true
	audioInit.SetPayload([]byte("aac-seq"))

	videoInit := AcquireMessage()
	videoInit.Type = MessageTypeVideo
	videoInit.IsInit = true
	videoInit.SetPayload([]byte("avc-seq"))

	stream.Publish(meta)
	stream.Publish(audioInit)
	stream.Publish(videoInit)

	liveFrame := AcquireMessage()
	liveFrame.Type = MessageTypeVideo
	liveFrame.Timestamp = 42
	liveFrame.SetPayload([]byte("frame"))

	lateSub, _ := stream.AttachSubscriber(10, BackpressureDropOldest)
	stream.Publish(liveFrame)

	want := []*MediaMessage{meta, videoInit, audioInit}
	// Cache replay order follows Stream.AttachSubscriber's fixed iteration
	// order: metadata, video init, audio init.
	for i, expect := range want {
		got, ok := lateSub.Buffer().Read()
		if !ok {
			t.Fatalf("late joiner missing cached message %d", i)
		}
		if got != expect {
			t.Fatalf("late joiner cached message %d: expected %p, got %p", i, expect, got)
		}
	}

	got, ok := lateSub.Buffer().Read()
	if !ok {
		t.Fatal("late joiner did not receive the live frame published after attach")
	}
	if got != liveFrame {
		t.Error("late joiner's fourth message must be the live frame published after attach")
	}

	if _, ok := lateSub.Buffer().Read(); ok {
		t.Error("late joiner should have nothing left to read")
	}
}

func TestDetachPublisherClearsCachedHeaders(t *testing.T) {
	stream := NewStream(NewStreamKey("live", "test"))
	stream.AttachPublisher(1)

	meta := AcquireMessage()
	meta.Type = MessageTypeMetadata
	meta.IsInit = true
	meta.SetPayload([]byte("onMetaData"))
	stream.Publish(meta)

	stream.DetachPublisher()
	stream.AttachPublisher(2)

	sub, _ := stream.AttachSubscriber(10, BackpressureDropOldest)
	if _, ok := sub.Buffer().Read(); ok {
		t.Error("a new publisher must not inherit the previous publisher's cached headers")
	}
}

func TestDroppedTotalSumsAcrossSubscribers(t *testing.T) {
	stream := NewStream(NewStreamKey("live", "test"))
	stream.AttachPublisher(1)

	stream.AttachSubscriber(2, BackpressureDropOldest)
	stream.AttachSubscriber(2, BackpressureDropOldest)

	payload := []byte("x")
	for i := 0; i < 5; i++ {
		msg := AcquireMessage()
		msg.Type = MessageTypeVideo
		msg.SetPayload(payload)
		stream.Publish(msg)
	}

	// Each capacity-2 subscriber keeps 2 of the 5 messages and drops 3.
	if got := stream.DroppedTotal(); got != 6 {
		t.Errorf("DroppedTotal() = %d, want 6 (3 dropped by each of 2 subscribers)", got)
	}
}

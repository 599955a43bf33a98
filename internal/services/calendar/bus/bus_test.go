package bus

import (
	"testing"
	"time"

	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
)

func recvChange(t *testing.T, sub *Subscription[domain.SignupChange]) domain.SignupChange {
	t.Helper()
	select {
	case v := <-sub.C():
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return domain.SignupChange{}
	}
}

func expectNone(t *testing.T, sub *Subscription[domain.SignupChange]) {
	t.Helper()
	select {
	case v := <-sub.C():
		t.Fatalf("unexpected notification: %+v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishWithoutSubscribersIsLost(t *testing.T) {
	b := NewBroadcaster[domain.SignupChange]()
	defer b.Close()

	// Must not panic, block, or leave anything behind.
	b.Publish(domain.SignupChange{Signup: domain.UserEventSignup{EventID: "ev-1"}})

	sub := b.Subscribe()
	defer sub.Close()
	expectNone(t, sub)
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster[domain.SignupChange]()
	defer b.Close()

	first := b.Subscribe()
	second := b.Subscribe()
	defer first.Close()
	defer second.Close()

	b.Publish(domain.SignupChange{Signup: domain.UserEventSignup{EventID: "ev-1", UserID: "user-1"}})

	if got := recvChange(t, first); got.Signup.EventID != "ev-1" {
		t.Fatalf("first subscriber got %+v", got)
	}
	if got := recvChange(t, second); got.Signup.UserID != "user-1" {
		t.Fatalf("second subscriber got %+v", got)
	}
}

func TestSlowSubscriberDropsOldestNotBlocksPublisher(t *testing.T) {
	b := NewBroadcaster[domain.SignupChange]()
	defer b.Close()

	sub := b.SubscribeBuffered(2)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		b.Publish(domain.SignupChange{Signup: domain.UserEventSignup{EventID: "ev", UserID: string(rune('a' + i))}})
	}

	// The queue holds the two newest notifications; the older three are gone.
	if got := recvChange(t, sub); got.Signup.UserID != "d" {
		t.Fatalf("first queued notification = %q, want d", got.Signup.UserID)
	}
	if got := recvChange(t, sub); got.Signup.UserID != "e" {
		t.Fatalf("second queued notification = %q, want e", got.Signup.UserID)
	}
	expectNone(t, sub)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster[domain.SignupChange]()
	defer b.Close()

	sub := b.Subscribe()
	sub.Close()
	sub.Close()

	if count := b.subscriberCount(); count != 0 {
		t.Fatalf("subscriber count = %d, want 0", count)
	}

	select {
	case <-sub.Done():
	default:
		t.Fatal("expected done to be closed")
	}

	b.Publish(domain.SignupChange{})
	expectNone(t, sub)
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	b := NewBroadcaster[domain.SignupChange]()
	first := b.Subscribe()
	second := b.Subscribe()

	b.Close()

	for _, sub := range []*Subscription[domain.SignupChange]{first, second} {
		select {
		case <-sub.Done():
		case <-time.After(time.Second):
			t.Fatal("subscription not closed with broadcaster")
		}
	}

	late := b.Subscribe()
	select {
	case <-late.Done():
	default:
		t.Fatal("expected late subscription on closed broadcaster to be done")
	}
}

func TestConcurrentPublishersDoNotBlock(t *testing.T) {
	b := NewBroadcaster[domain.SignupChange]()
	defer b.Close()

	sub := b.SubscribeBuffered(1)
	defer sub.Close()

	finished := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				b.Publish(domain.SignupChange{})
			}
			finished <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("publisher blocked")
		}
	}
}

func TestBusGroupsBroadcastersPerKind(t *testing.T) {
	b := New()
	defer b.Close()

	events := b.Events.Subscribe()
	defer events.Close()

	b.Signups.Publish(domain.SignupChange{Signup: domain.UserEventSignup{EventID: "ev-1"}})

	select {
	case v := <-events.C():
		t.Fatalf("event feed received signup change: %+v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

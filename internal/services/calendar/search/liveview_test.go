package search

import (
	"context"
	"testing"
	"time"

	"github.com/mirakulix/play-together-api/internal/services/calendar/bus"
	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
)

type fakeEventStore struct {
	events []domain.Event
}

func (f *fakeEventStore) PutEvent(ctx context.Context, event domain.Event) error { return nil }

func (f *fakeEventStore) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	for _, event := range f.events {
		if event.EventID == eventID {
			return event, nil
		}
	}
	return domain.Event{}, storage.ErrNotFound
}

func (f *fakeEventStore) DeleteEvent(ctx context.Context, eventID string) error { return nil }

func (f *fakeEventStore) ListEvents(ctx context.Context, query storage.EventQuery) ([]domain.Event, error) {
	// The in-memory store ignores the SQL narrowing; Matches re-checks
	// every condition anyway.
	return append([]domain.Event(nil), f.events...), nil
}

type staticContextSource struct {
	ctx   Context
	panic bool
}

func (s *staticContextSource) SearchContext(ctx context.Context, callerID string) (Context, error) {
	if s.panic {
		panic("context source exploded")
	}
	out := s.ctx
	out.CallerID = callerID
	return out, nil
}

func recvUpdate(t *testing.T, view *View) Update {
	t.Helper()
	select {
	case update, ok := <-view.Updates():
		if !ok {
			t.Fatal("update channel closed")
		}
		return update
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update{}
}

func expectNoUpdate(t *testing.T, view *View) {
	t.Helper()
	select {
	case update := <-view.Updates():
		t.Fatalf("unexpected update: %+v", update)
	case <-time.After(50 * time.Millisecond):
	}
}

func openTestView(t *testing.T, store *fakeEventStore, source ContextSource, opts Options) (*View, *bus.Broadcaster[domain.EventChange]) {
	t.Helper()
	broadcaster := bus.NewBroadcaster[domain.EventChange]()
	t.Cleanup(broadcaster.Close)

	spec := mustSpec(t, opts)
	view, err := OpenView(context.Background(), ViewConfig{
		Spec:     spec,
		CallerID: "caller-1",
		Events:   store,
		Source:   source,
		Changes:  broadcaster.Subscribe(),
	})
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	t.Cleanup(view.Close)
	return view, broadcaster
}

func TestViewEmitsSnapshotFirst(t *testing.T) {
	upcoming := publicEvent("event-1")
	finished := publicEvent("event-2")
	finished.StartsAt = specNow.Add(-6 * time.Hour)
	finished.EndsAt = specNow.Add(-3 * time.Hour)

	store := &fakeEventStore{events: []domain.Event{upcoming, finished}}
	view, _ := openTestView(t, store, &staticContextSource{}, Options{})

	snapshot := recvUpdate(t, view)
	if snapshot.Kind != UpdateSnapshot {
		t.Fatalf("first update kind = %q, want snapshot", snapshot.Kind)
	}
	if len(snapshot.Events) != 1 || snapshot.Events[0].EventID != "event-1" {
		t.Fatalf("snapshot = %+v, want only the upcoming event", snapshot.Events)
	}
}

func TestViewAddsUpdatesAndRemoves(t *testing.T) {
	store := &fakeEventStore{}
	view, broadcaster := openTestView(t, store, &staticContextSource{}, Options{})

	if snapshot := recvUpdate(t, view); len(snapshot.Events) != 0 {
		t.Fatalf("snapshot = %+v, want empty", snapshot.Events)
	}

	event := publicEvent("event-1")
	broadcaster.Publish(domain.EventChange{Event: event, Kind: domain.ChangeCreated})
	update := recvUpdate(t, view)
	if update.Kind != UpdateAdded || update.Event.EventID != "event-1" {
		t.Fatalf("update = %+v, want Added event-1", update)
	}

	event.Title = "Renamed session"
	broadcaster.Publish(domain.EventChange{Event: event, Kind: domain.ChangeUpdated})
	update = recvUpdate(t, view)
	if update.Kind != UpdateUpdated {
		t.Fatalf("update kind = %q, want Updated", update.Kind)
	}

	broadcaster.Publish(domain.EventChange{Event: event, Kind: domain.ChangeDeleted})
	update = recvUpdate(t, view)
	if update.Kind != UpdateRemoved {
		t.Fatalf("update kind = %q, want Removed", update.Kind)
	}

	// A delete for an event outside the view is silent.
	broadcaster.Publish(domain.EventChange{Event: publicEvent("event-9"), Kind: domain.ChangeDeleted})
	expectNoUpdate(t, view)
}

func TestViewRemovesWhenUpdateStopsMatching(t *testing.T) {
	event := publicEvent("event-1")
	store := &fakeEventStore{events: []domain.Event{event}}
	view, broadcaster := openTestView(t, store, &staticContextSource{}, Options{Search: "board"})

	snapshot := recvUpdate(t, view)
	if len(snapshot.Events) != 1 {
		t.Fatalf("snapshot = %+v, want event-1", snapshot.Events)
	}

	event.Title = "Chess tournament"
	event.Description = "Serious play only."
	broadcaster.Publish(domain.EventChange{Event: event, Kind: domain.ChangeUpdated})
	update := recvUpdate(t, view)
	if update.Kind != UpdateRemoved || update.Event.EventID != "event-1" {
		t.Fatalf("update = %+v, want Removed event-1", update)
	}

	// Once removed, a second non-matching update is silent.
	broadcaster.Publish(domain.EventChange{Event: event, Kind: domain.ChangeUpdated})
	expectNoUpdate(t, view)
}

func TestViewNonMatchingCreateIsSilent(t *testing.T) {
	store := &fakeEventStore{}
	view, broadcaster := openTestView(t, store, &staticContextSource{}, Options{OnlyGames: []string{"game-7"}})
	recvUpdate(t, view)

	broadcaster.Publish(domain.EventChange{Event: publicEvent("event-1"), Kind: domain.ChangeCreated})
	expectNoUpdate(t, view)
}

func TestViewReconstructedSetMatchesStore(t *testing.T) {
	store := &fakeEventStore{}
	view, broadcaster := openTestView(t, store, &staticContextSource{}, Options{})

	reconstructed := make(map[string]domain.Event)
	apply := func(update Update) {
		switch update.Kind {
		case UpdateSnapshot:
			for _, event := range update.Events {
				reconstructed[event.EventID] = event
			}
		case UpdateAdded, UpdateUpdated:
			reconstructed[update.Event.EventID] = update.Event
		case UpdateRemoved:
			delete(reconstructed, update.Event.EventID)
		}
	}
	apply(recvUpdate(t, view))

	first := publicEvent("event-1")
	second := publicEvent("event-2")
	broadcaster.Publish(domain.EventChange{Event: first, Kind: domain.ChangeCreated})
	apply(recvUpdate(t, view))
	broadcaster.Publish(domain.EventChange{Event: second, Kind: domain.ChangeCreated})
	apply(recvUpdate(t, view))

	second.EndsAt = specNow.Add(-time.Hour)
	broadcaster.Publish(domain.EventChange{Event: second, Kind: domain.ChangeUpdated})
	apply(recvUpdate(t, view))
	broadcaster.Publish(domain.EventChange{Event: first, Kind: domain.ChangeDeleted})
	apply(recvUpdate(t, view))

	if len(reconstructed) != 0 {
		t.Fatalf("reconstructed set = %v, want empty", reconstructed)
	}
}

func TestViewFriendsOnlyDelivery(t *testing.T) {
	friendSource := &staticContextSource{ctx: Context{FriendIDs: map[string]struct{}{"creator-1": {}}}}
	strangerSource := &staticContextSource{}

	private := publicEvent("event-1")
	private.FriendsOnly = true

	friendView, friendBus := openTestView(t, &fakeEventStore{}, friendSource, Options{IncludePrivate: true})
	recvUpdate(t, friendView)
	friendBus.Publish(domain.EventChange{Event: private, Kind: domain.ChangeCreated})
	if update := recvUpdate(t, friendView); update.Kind != UpdateAdded {
		t.Fatalf("friend update = %+v, want Added", update)
	}

	strangerView, strangerBus := openTestView(t, &fakeEventStore{}, strangerSource, Options{IncludePrivate: true})
	recvUpdate(t, strangerView)
	strangerBus.Publish(domain.EventChange{Event: private, Kind: domain.ChangeCreated})
	expectNoUpdate(t, strangerView)
}

func TestViewCloseIsIdempotentAndStopsStream(t *testing.T) {
	view, broadcaster := openTestView(t, &fakeEventStore{}, &staticContextSource{}, Options{})
	recvUpdate(t, view)

	view.Close()
	view.Close()

	select {
	case <-view.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("view did not report done after close")
	}

	broadcaster.Publish(domain.EventChange{Event: publicEvent("event-1"), Kind: domain.ChangeCreated})
	for range view.Updates() {
	}
	if err := view.Err(); err != nil {
		t.Fatalf("closed view reported error: %v", err)
	}
}

func TestViewPanicClosesOnlyThatView(t *testing.T) {
	broadcaster := bus.NewBroadcaster[domain.EventChange]()
	t.Cleanup(broadcaster.Close)

	panicking := &staticContextSource{}
	spec := mustSpec(t, Options{})
	badView, err := OpenView(context.Background(), ViewConfig{
		Spec:     spec,
		CallerID: "caller-1",
		Events:   &fakeEventStore{},
		Source:   panicking,
		Changes:  broadcaster.Subscribe(),
	})
	if err != nil {
		t.Fatalf("open panicking view: %v", err)
	}
	t.Cleanup(badView.Close)
	recvUpdate(t, badView)
	panicking.panic = true

	goodView, err := OpenView(context.Background(), ViewConfig{
		Spec:     mustSpec(t, Options{}),
		CallerID: "caller-2",
		Events:   &fakeEventStore{},
		Source:   &staticContextSource{},
		Changes:  broadcaster.Subscribe(),
	})
	if err != nil {
		t.Fatalf("open good view: %v", err)
	}
	t.Cleanup(goodView.Close)
	recvUpdate(t, goodView)

	broadcaster.Publish(domain.EventChange{Event: publicEvent("event-1"), Kind: domain.ChangeCreated})

	select {
	case <-badView.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("panicking view did not close")
	}
	if badView.Err() == nil {
		t.Fatal("panicking view closed without an error")
	}

	if update := recvUpdate(t, goodView); update.Kind != UpdateAdded {
		t.Fatalf("good view update = %+v, want Added", update)
	}
}

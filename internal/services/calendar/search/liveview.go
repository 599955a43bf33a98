package search

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mirakulix/play-together-api/internal/services/calendar/bus"
	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
)

// UpdateKind classifies a live-view message.
type UpdateKind string

const (
	// UpdateSnapshot is the first message: the fully materialized result.
	UpdateSnapshot UpdateKind = "SNAPSHOT"
	// UpdateAdded means an event newly entered the result.
	UpdateAdded UpdateKind = "ADDED"
	// UpdateUpdated means an event already in the result changed.
	UpdateUpdated UpdateKind = "UPDATED"
	// UpdateRemoved means an event left the result.
	UpdateRemoved UpdateKind = "REMOVED"
)

// Update is one live-view message. Snapshot carries Events; the incremental
// kinds carry the single affected Event.
type Update struct {
	Kind   UpdateKind
	Event  domain.Event
	Events []domain.Event
}

// ContextSource resolves the caller-dependent sets a predicate needs. It is
// consulted once per evaluated change; implementations must not cache across
// calls, so revoked friendships never leak into a long-lived view.
type ContextSource interface {
	SearchContext(ctx context.Context, callerID string) (Context, error)
}

// ViewConfig wires a live view to its collaborators.
type ViewConfig struct {
	Spec     *Spec
	CallerID string
	Events   storage.EventStore
	Source   ContextSource
	Changes  *bus.Subscription[domain.EventChange]
	// QueueSize bounds the outbound queue; zero means bus.DefaultQueueSize.
	QueueSize int
}

// View is a live event-search subscription: one snapshot followed by
// incremental membership changes. A single goroutine owns the membership
// set; the update channel has exactly one consumer.
type View struct {
	spec     *Spec
	callerID string
	source   ContextSource
	changes  *bus.Subscription[domain.EventChange]

	updates chan Update
	done    chan struct{}
	once    sync.Once

	// members is touched only by the reconcile goroutine after OpenView.
	members map[string]struct{}

	errMu sync.Mutex
	err   error
}

// OpenView materializes the snapshot and starts reconciling changes.
// Snapshot and context lookups happen before the first message; any failure
// here returns an error and no stream is produced.
func OpenView(ctx context.Context, cfg ViewConfig) (*View, error) {
	if cfg.Spec == nil {
		return nil, fmt.Errorf("spec is required")
	}
	if cfg.Events == nil || cfg.Source == nil || cfg.Changes == nil {
		return nil, fmt.Errorf("view collaborators are not configured")
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = bus.DefaultQueueSize
	}

	events, err := cfg.Events.ListEvents(ctx, cfg.Spec.SnapshotQuery())
	if err != nil {
		return nil, fmt.Errorf("snapshot query: %w", err)
	}
	searchCtx, err := cfg.Source.SearchContext(ctx, cfg.CallerID)
	if err != nil {
		return nil, fmt.Errorf("resolve search context: %w", err)
	}

	view := &View{
		spec:     cfg.Spec,
		callerID: cfg.CallerID,
		source:   cfg.Source,
		changes:  cfg.Changes,
		updates:  make(chan Update, queueSize+1),
		done:     make(chan struct{}),
		members:  make(map[string]struct{}),
	}

	var snapshot []domain.Event
	for _, event := range events {
		if cfg.Spec.Matches(event, searchCtx) {
			snapshot = append(snapshot, event)
			view.members[event.EventID] = struct{}{}
		}
	}
	view.updates <- Update{Kind: UpdateSnapshot, Events: snapshot}

	go view.run()
	return view, nil
}

// Updates is the view's output stream. Closed when the view ends.
func (v *View) Updates() <-chan Update {
	return v.updates
}

// Done is closed once the view stops consuming changes.
func (v *View) Done() <-chan struct{} {
	return v.changes.Done()
}

// Err reports why the view closed, nil for a normal close.
func (v *View) Err() error {
	v.errMu.Lock()
	defer v.errMu.Unlock()
	return v.err
}

// Close stops the view. Safe to call more than once.
func (v *View) Close() {
	v.once.Do(func() {
		close(v.done)
		v.changes.Close()
	})
}

func (v *View) run() {
	defer close(v.updates)
	for {
		select {
		case <-v.done:
			return
		case <-v.changes.Done():
			v.Close()
			return
		case change, ok := <-v.changes.C():
			if !ok {
				v.Close()
				return
			}
			if !v.reconcile(change) {
				v.Close()
				return
			}
		}
	}
}

// reconcile applies one change to the membership set and emits at most one
// update. A panic closes only this view; the bus and sibling subscriptions
// are untouched. Returns false when the view must stop.
func (v *View) reconcile(change domain.EventChange) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.setErr(fmt.Errorf("live view reconciliation panic: %v", r))
			log.Printf("calendar search view closed after panic: %v", r)
			ok = false
		}
	}()

	eventID := change.Event.EventID
	if eventID == "" {
		return true
	}
	_, inView := v.members[eventID]

	if change.Kind == domain.ChangeDeleted {
		if inView {
			delete(v.members, eventID)
			v.offer(Update{Kind: UpdateRemoved, Event: change.Event})
		}
		return true
	}

	matches := v.matchesNow(change.Event)
	switch {
	case !inView && matches:
		v.members[eventID] = struct{}{}
		v.offer(Update{Kind: UpdateAdded, Event: change.Event})
	case inView && matches && change.Kind == domain.ChangeUpdated:
		v.offer(Update{Kind: UpdateUpdated, Event: change.Event})
	case inView && !matches:
		delete(v.members, eventID)
		v.offer(Update{Kind: UpdateRemoved, Event: change.Event})
	}
	return true
}

// matchesNow re-resolves the caller context and evaluates the spec. A failed
// context lookup degrades to non-match rather than erroring the stream.
func (v *View) matchesNow(event domain.Event) bool {
	searchCtx, err := v.source.SearchContext(context.Background(), v.callerID)
	if err != nil {
		return false
	}
	return v.spec.Matches(event, searchCtx)
}

// offer enqueues one update without ever blocking the reconcile loop. When
// the consumer lags, the oldest queued update is dropped.
func (v *View) offer(update Update) {
	for {
		select {
		case v.updates <- update:
			return
		default:
		}
		select {
		case <-v.updates:
		default:
		}
	}
}

func (v *View) setErr(err error) {
	v.errMu.Lock()
	defer v.errMu.Unlock()
	if v.err == nil {
		v.err = err
	}
}

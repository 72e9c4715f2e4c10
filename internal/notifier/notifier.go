// Package notifier turns stored responses into live updates.
package notifier

import (
	"context"
	"log"
	"sync"

	"github.com/emilythestrangee/tally/backend/internal/broadcast"
	"github.com/emilythestrangee/tally/backend/internal/database"
	"github.com/emilythestrangee/tally/backend/internal/models"
)

type Notifier interface {
	// Inserted is called after responses were written.
	Inserted(ctx context.Context, rs ...models.Response)

	// Refresh recomputes the tallies and broadcasts them.
	Refresh(ctx context.Context)

	// Run blocks until ctx is done, consuming the store's change feed if any.
	Run(ctx context.Context) error
}

// New picks Feed for durable stores that can watch inserts and Direct
// otherwise.
func New(store database.Store, b broadcast.Broadcaster) Notifier {
	if feed, ok := store.(database.ChangeFeed); ok && store.Durable() && feed.CanWatch() {
		log.Println("📡 Live updates driven by the database change feed")
		return NewFeed(store, feed, b)
	}
	log.Println("📡 Live updates driven by direct calls")
	return NewDirect(store, b)
}

type refresher struct {
	mu    sync.Mutex
	store database.Store
	out   broadcast.Broadcaster
}

// refresh serialises recompute and broadcast so a stale snapshot never
// follows a newer one.
func (r *refresher) refresh(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, err := r.store.Tallies(ctx)
	if err != nil {
		log.Printf("Error recomputing tallies: %v", err)
		return
	}
	r.out.BroadcastTallies(snapshot)
}

// Direct notifies from the write path itself.
type Direct struct {
	refresher
}

func NewDirect(store database.Store, b broadcast.Broadcaster) *Direct {
	return &Direct{refresher{store: store, out: b}}
}

func (d *Direct) Inserted(ctx context.Context, rs ...models.Response) {
	if len(rs) == 0 {
		return
	}
	for _, r := range rs {
		d.out.NotifyAdmins(r)
	}
	d.refresh(ctx)
}

func (d *Direct) Refresh(ctx context.Context) { d.refresh(ctx) }

func (d *Direct) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Feed emits admin events from the store's change feed. The write path only
// triggers the tally broadcast.
type Feed struct {
	refresher
	feed database.ChangeFeed
}

func NewFeed(store database.Store, feed database.ChangeFeed, b broadcast.Broadcaster) *Feed {
	return &Feed{refresher: refresher{store: store, out: b}, feed: feed}
}

func (f *Feed) Inserted(ctx context.Context, rs ...models.Response) {
	if len(rs) == 0 {
		return
	}
	f.refresh(ctx)
}

func (f *Feed) Refresh(ctx context.Context) { f.refresh(ctx) }

// localAdminNotifier is implemented by broadcasters that can skip their
// cross-instance relay.
type localAdminNotifier interface {
	NotifyAdminsLocal(r models.Response)
}

// Run emits admin events for inserts seen on the feed. Every instance watches
// the same feed, so the events are delivered to local sessions only.
func (f *Feed) Run(ctx context.Context) error {
	notify := f.out.NotifyAdmins
	if local, ok := f.out.(localAdminNotifier); ok {
		notify = local.NotifyAdminsLocal
	}
	return f.feed.Watch(ctx, notify)
}

package playlist

import (
	"context"
	"sort"
	"sync"
	"time"

	"musicroom/internal/logger"
)

// dispatcher publishes snapshots in the background. Snapshots of one playlist go out one
// at a time in version order, and a snapshot older than one already published is skipped,
// so the last message a viewer receives always matches the last committed state.
type dispatcher struct {
	broadcaster Broadcaster
	timeout     time.Duration

	mu     sync.Mutex
	queues map[string]*playlistQueue
	wg     sync.WaitGroup
}

type playlistQueue struct {
	// pending is sorted by version.
	pending []snapshot
	// published is only touched by the queue's worker.
	published int64
}

type snapshot struct {
	ctx        context.Context
	playlistID string
	version    int64
	entries    []Entry
}

func newDispatcher(b Broadcaster, timeout time.Duration) *dispatcher {
	return &dispatcher{
		broadcaster: b,
		timeout:     timeout,
		queues:      make(map[string]*playlistQueue),
	}
}

// enqueue schedules snap for publishing. It never blocks on the broadcaster.
func (d *dispatcher) enqueue(snap snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, ok := d.queues[snap.playlistID]
	if !ok {
		q = &playlistQueue{}
		d.queues[snap.playlistID] = q
		d.wg.Add(1)
		go d.run(snap.playlistID, q)
	}

	i := sort.Search(len(q.pending), func(i int) bool { return q.pending[i].version > snap.version })
	q.pending = append(q.pending, snapshot{})
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = snap
}

func (d *dispatcher) run(playlistID string, q *playlistQueue) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			delete(d.queues, playlistID)
			d.mu.Unlock()
			return
		}
		snap := q.pending[0]
		q.pending = q.pending[1:]
		d.mu.Unlock()

		if snap.version <= q.published {
			logger.Log.Debug().
				Str("playlist_id", playlistID).
				Int64("version", snap.version).
				Int64("published", q.published).
				Msg("skipping stale playlist snapshot")
			continue
		}
		d.publish(snap)
		q.published = snap.version
	}
}

func (d *dispatcher) publish(snap snapshot) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(snap.ctx), d.timeout)
	defer cancel()

	if err := d.broadcaster.Publish(ctx, snap.playlistID, snap.version, snap.entries); err != nil {
		logger.Log.Warn().
			Err(err).
			Str("playlist_id", snap.playlistID).
			Int64("version", snap.version).
			Msg("playlist broadcast failed")
	}
}

// wait blocks until every queued snapshot has been handled.
func (d *dispatcher) wait() {
	d.wg.Wait()
}

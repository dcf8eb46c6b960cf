package eventsource

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/keepsake-xyz/keepsake/asset"
)

// Journal persists asset events to a Store and fans them out to live
// subscribers. It implements asset.Recorder, so it plugs straight into
// asset.WithRecorder.
type Journal struct {
	store    Store
	streamID string
	log      *zap.Logger

	mu      sync.Mutex
	version int
	subs    map[chan *Event]struct{}
}

// NewJournal creates a journal writing to streamID. The stream's
// current version is loaded so appends continue where a previous run
// left off.
func NewJournal(store Store, streamID string, log *zap.Logger) (*Journal, error) {
	if log == nil {
		log = zap.NewNop()
	}
	version, err := store.StreamVersion(context.Background(), streamID)
	if err != nil {
		return nil, err
	}
	return &Journal{
		store:    store,
		streamID: streamID,
		log:      log,
		version:  version,
		subs:     make(map[chan *Event]struct{}),
	}, nil
}

// Record implements asset.Recorder. Store failures are logged, not
// propagated: the state transition already happened and must not be
// blocked by the journal.
func (j *Journal) Record(ae asset.Event) {
	e, err := NewEvent(j.streamID, ae.Type, ae.Data)
	if err != nil {
		j.log.Error("journal: marshal event", zap.String("type", ae.Type), zap.Error(err))
		return
	}
	e.Timestamp = ae.At

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.store.Append(context.Background(), j.streamID, j.version, []*Event{e}); err != nil {
		j.log.Error("journal: append",
			zap.String("type", ae.Type),
			zap.Int("version", j.version),
			zap.Error(err))
		return
	}
	j.version = e.Version
	j.log.Debug("journal: recorded",
		zap.String("type", ae.Type),
		zap.Int("version", e.Version))

	for ch := range j.subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber; drop rather than stall the asset.
		}
	}
}

// Subscribe returns a channel of future events. Call the returned stop
// function to unsubscribe.
func (j *Journal) Subscribe(buffer int) (<-chan *Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *Event, buffer)

	j.mu.Lock()
	j.subs[ch] = struct{}{}
	j.mu.Unlock()

	stop := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
			close(ch)
		}
	}
	return ch, stop
}

// History returns the stream's persisted events from fromVersion on.
func (j *Journal) History(ctx context.Context, fromVersion int) ([]*Event, error) {
	return j.store.Read(ctx, j.streamID, fromVersion)
}

// Version returns the journal's last appended version, -1 when empty.
func (j *Journal) Version() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.version
}

var _ asset.Recorder = (*Journal)(nil)

// Package store persists session transcripts in a bbolt database. Each
// output event is stored CBOR-encoded under an increasing 8-byte key.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"

	"SerialShell/internal/model"
)

var bucketEvents = []byte("events")

// queueSize bounds the number of events waiting to be written.
const queueSize = 1024

// ErrClosed is returned when appending to a closed transcript.
var ErrClosed = errors.New("transcript closed")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("transcript cbor encoder: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("transcript cbor decoder: %v", err))
	}
}

// Transcript is an append-only event store.
type Transcript struct {
	db  *bbolt.DB
	log *slog.Logger

	mu     sync.Mutex
	queue  chan model.Event
	closed bool
	done   chan struct{}
}

// Open opens or creates the transcript database at path.
func Open(path string, logger *slog.Logger) (*Transcript, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open transcript %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init transcript %s: %w", path, err)
	}
	t := &Transcript{
		db:    db,
		log:   logger.With("component", "transcript", "path", path),
		queue: make(chan model.Event, queueSize),
		done:  make(chan struct{}),
	}
	go t.writer()
	return t, nil
}

// Append stores ev synchronously.
func (t *Transcript) Append(ev model.Event) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return t.put([]model.Event{ev})
}

// Record queues ev for the background writer. It never blocks; when the
// queue is full the event is dropped and logged.
func (t *Transcript) Record(ev model.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- ev:
	default:
		t.log.Warn("transcript queue full, event dropped", "seq", ev.Seq)
	}
}

// Load returns every stored event in insertion order.
func (t *Transcript) Load() ([]model.Event, error) {
	var out []model.Event
	err := t.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var ev model.Event
			if err := decMode.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("decode event %x: %w", k, err)
			}
			out = append(out, ev)
			return nil
		})
	})
	return out, err
}

// Close flushes queued events and closes the database.
func (t *Transcript) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	<-t.done
	return t.db.Close()
}

// writer batches queued events into one transaction each time it wakes.
func (t *Transcript) writer() {
	defer close(t.done)
	for ev := range t.queue {
		batch := []model.Event{ev}
	more:
		for {
			select {
			case next, ok := <-t.queue:
				if !ok {
					break more
				}
				batch = append(batch, next)
			default:
				break more
			}
		}
		if err := t.put(batch); err != nil {
			t.log.Error("write transcript", "err", err, "events", len(batch))
		}
	}
}

func (t *Transcript) put(events []model.Event) error {
	return t.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		for _, ev := range events {
			v, err := encMode.Marshal(ev)
			if err != nil {
				return fmt.Errorf("encode event %d: %w", ev.Seq, err)
			}
			id, err := b.NextSequence()
			if err != nil {
				return err
			}
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], id)
			if err := b.Put(key[:], v); err != nil {
				return err
			}
		}
		return nil
	})
}

package incident

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"aegis_router/pkg/geo"
)

var keyPrefix = []byte("incident:")

// record is the msgpack layout of an incident on disk.
type record struct {
	ID          string  `msgpack:"id"`
	Lat         float64 `msgpack:"lat"`
	Lng         float64 `msgpack:"lng"`
	Severity    uint8   `msgpack:"sev"`
	ReportedAt  int64   `msgpack:"ts"`
	Description string  `msgpack:"desc,omitempty"`
}

// BadgerOptions configures the BadgerDB incident log.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence. Used by tests.
	InMemory bool

	Logger *slog.Logger
}

// BadgerLog persists incidents in BadgerDB. Keys are
// incident:<big-endian unix nanos>:<id>, so a prefix scan returns records in
// ReportedAt order.
type BadgerLog struct {
	db *badger.DB
}

// OpenBadger opens or creates a BadgerDB incident log.
func OpenBadger(opts BadgerOptions) (*BadgerLog, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("incident: BadgerOptions.Dir is required for on-disk mode")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerLog{db: db}, nil
}

func recordKey(inc Incident) []byte {
	k := make([]byte, 0, len(keyPrefix)+8+1+len(inc.ID))
	k = append(k, keyPrefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(inc.ReportedAt.UnixNano()))
	k = append(k, ':')
	return append(k, inc.ID...)
}

func (b *BadgerLog) Append(_ context.Context, inc Incident) error {
	val, err := msgpack.Marshal(&record{
		ID:          inc.ID,
		Lat:         inc.Coord.Lat,
		Lng:         inc.Coord.Lng,
		Severity:    uint8(inc.Severity),
		ReportedAt:  inc.ReportedAt.UnixNano(),
		Description: inc.Description,
	})
	if err != nil {
		return fmt.Errorf("encode incident %s: %w", inc.ID, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(inc), val)
	})
}

func (b *BadgerLog) Scan(ctx context.Context) iter.Seq2[Incident, error] {
	return func(yield func(Incident, error) bool) {
		err := b.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = keyPrefix
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var rec record
				err := it.Item().Value(func(val []byte) error {
					return msgpack.Unmarshal(val, &rec)
				})
				if err != nil {
					err = fmt.Errorf("decode %q: %w", it.Item().Key(), err)
					if !yield(Incident{}, err) {
						return nil
					}
					continue
				}
				inc := Incident{
					ID:          rec.ID,
					Coord:       geo.Coordinate{Lat: rec.Lat, Lng: rec.Lng},
					Severity:    Severity(rec.Severity),
					ReportedAt:  time.Unix(0, rec.ReportedAt).UTC(),
					Description: rec.Description,
				}
				if !yield(inc, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(Incident{}, err)
		}
	}
}

func (b *BadgerLog) Delete(_ context.Context, incs []Incident) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, inc := range incs {
		if err := wb.Delete(recordKey(inc)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *BadgerLog) Close() error {
	return b.db.Close()
}

// badgerLogger forwards badger warnings and errors to slog and drops its
// info and debug chatter.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, v ...any)   { b.l.Error(fmt.Sprintf("badger: "+f, v...)) }
func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}

package cache

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var fetchesBucket = []byte("fetches")

// FetchRecord is one completed download, kept for observability only. The
// ledger is never consulted to decide cache presence — on-disk file
// existence remains the sole source of truth for that.
type FetchRecord struct {
	URL         string
	CachePath   string
	Size        int64
	Duration    time.Duration
	CompletedAt time.Time
}

// Ledger is a small embedded key/value store (go.etcd.io/bbolt, the
// teacher's own embedded-KV dependency) recording completed fetches for
// metrics and troubleshooting.
type Ledger struct {
	db  *bolt.DB
	log *logrus.Entry
}

// OpenLedger opens (creating if absent) a ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "ledger: opening database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(fetchesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ledger: initializing bucket")
	}
	return &Ledger{db: db, log: logrus.WithField("component", "ledger")}, nil
}

// Record persists rec, keyed by its completion time so the ledger reads
// back in chronological order. Failures are logged, not returned: the
// ledger is additive bookkeeping and must never block or fail a download
// that otherwise succeeded.
func (l *Ledger) Record(rec FetchRecord) {
	key := []byte(rec.CompletedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00") + "_" + rec.URL)
	value, err := json.Marshal(rec)
	if err != nil {
		l.log.WithError(err).Warn("failed to marshal fetch record")
		return
	}
	err = l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(fetchesBucket).Put(key, value)
	})
	if err != nil {
		l.log.WithError(err).Warn("failed to persist fetch record")
	}
}

// Recent returns up to n most recently recorded fetches, newest first.
func (l *Ledger) Recent(n int) ([]FetchRecord, error) {
	var records []FetchRecord
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(fetchesBucket).Cursor()
		for k, v := c.Last(); k != nil && len(records) < n; k, v = c.Prev() {
			var rec FetchRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

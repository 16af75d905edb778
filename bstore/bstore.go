// Package bstore wraps a single bbolt database file shared by the
// attribute store, the object registry, and the collection index
// (section 6: all three live in one osd.db file). It centralizes
// bucket creation, the busy-retry loop section 4.3 and section 9 call
// for, and the root-directory layout of section 6.
package bstore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/rob-gra/osd-target/clog"
)

// Well-known bucket names, one bucket tree per subsystem. Sub-buckets
// are created per partition under Objects/Collections/Attributes to
// keep per-partition scans cheap; Partitions holds one flat record per
// partition id.
const (
	BucketAttrs       = "attrs"
	BucketObjects     = "objects"
	BucketPartitions  = "partitions"
	BucketCollections = "collections"
	BucketMeta        = "meta"
)

// topBuckets is created on open, mirroring the fixed table set the
// original SQL schema (osd-target/db.c) creates once at init.
var topBuckets = []string{BucketAttrs, BucketObjects, BucketPartitions, BucketCollections, BucketMeta}

// Store is the opened bbolt handle plus the retry policy every
// subsystem's mutating calls run under.
type Store struct {
	DB  *bolt.DB
	log clog.Clog

	retryLimit    int
	retryInterval time.Duration
}

// Options configure Open. Zero values take the defaults described in
// each field's comment.
type Options struct {
	// RootPath is the OSD root directory (section 6): <root>/osd.db,
	// <root>/dfiles/, <root>/stranded/, <root>/md/ all live under it.
	RootPath string
	// FormatOnMissingDB creates RootPath/osd.db and its bucket layout
	// if it does not already exist; otherwise a missing db is an error.
	FormatOnMissingDB bool
	// FileMode is the mode used to create osd.db. Defaults to 0600.
	FileMode os.FileMode
	// OpenTimeout bounds how long Open waits on bbolt's file lock.
	// Defaults to 5s.
	OpenTimeout time.Duration
	// RetryLimit bounds the internal busy-retry loop (section 4.3,
	// section 7: "local retries are limited to the attribute store's
	// busy-loop"). Defaults to 20.
	RetryLimit int
	// RetryInterval is the backoff between retries. Defaults to 5ms.
	RetryInterval time.Duration
}

func (o *Options) setDefaults() {
	if o.FileMode == 0 {
		o.FileMode = 0o600
	}
	if o.OpenTimeout == 0 {
		o.OpenTimeout = 5 * time.Second
	}
	if o.RetryLimit == 0 {
		o.RetryLimit = 20
	}
	if o.RetryInterval == 0 {
		o.RetryInterval = 5 * time.Millisecond
	}
}

// Open opens (and if requested, formats) the OSD database file and
// ensures the root directory layout of section 6 exists.
func Open(opts Options, log clog.Clog) (*Store, error) {
	opts.setDefaults()
	if opts.RootPath == "" {
		return nil, errors.New("bstore: RootPath is required")
	}

	for _, sub := range []string{"dfiles", "stranded", "md"} {
		if err := os.MkdirAll(filepath.Join(opts.RootPath, sub), 0o755); err != nil {
			return nil, errors.Wrapf(err, "bstore: creating %s", sub)
		}
	}

	dbPath := filepath.Join(opts.RootPath, "osd.db")
	_, statErr := os.Stat(dbPath)
	if os.IsNotExist(statErr) && !opts.FormatOnMissingDB {
		return nil, errors.Errorf("bstore: %s does not exist and format-on-missing-db is false", dbPath)
	}

	db, err := bolt.Open(dbPath, opts.FileMode, &bolt.Options{Timeout: opts.OpenTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "bstore: opening db")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range topBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.Wrapf(err, "bstore: creating bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		DB:            db,
		log:           log,
		retryLimit:    opts.RetryLimit,
		retryInterval: opts.RetryInterval,
	}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Update runs fn inside a bbolt write transaction, internally retrying
// on bolt.ErrTimeout (the backend's busy/locked signal) so that, per
// section 4.3 and section 9, callers never observe a "repeat" status:
// the attribute store's (and registry's, and collection index's)
// public methods are atomic with respect to each other by construction
// because bbolt serializes writers, and Update only needs to retry the
// rare case where an OS-level file lock briefly contends with another
// process attached to the same root.
func (s *Store) Update(fn func(tx *bolt.Tx) error) error {
	var err error
	for attempt := 0; attempt < s.retryLimit; attempt++ {
		err = s.DB.Update(fn)
		if !errors.Is(err, bolt.ErrTimeout) && !errors.Is(err, bolt.ErrDatabaseNotOpen) {
			return err
		}
		s.log.Debug("bstore: update busy, retrying (attempt %d)", attempt+1)
		time.Sleep(s.retryInterval)
	}
	return err
}

// View runs fn inside a bbolt read-only transaction.
func (s *Store) View(fn func(tx *bolt.Tx) error) error {
	return s.DB.View(fn)
}

// PartitionBucketName returns the name of the per-partition sub-bucket
// used within BucketAttrs/BucketObjects/BucketCollections, keyed by
// the partition id's fixed-width big-endian encoding so bucket
// iteration order matches numeric pid order.
func PartitionBucketName(pid uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(pid)
		pid >>= 8
	}
	return b
}

package lens

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const scansBucket = "scans"

// ErrScanNotFound is returned for unknown scan IDs
var ErrScanNotFound = errors.New("scan not found")

// DB defines the interface for scan history storage
type DB interface {
	// SaveScan inserts or replaces a scan
	SaveScan(scan *Scan) error

	// GetScan retrieves a scan by ID
	GetScan(id string) (*Scan, error)

	// ListScans returns all scans, newest first
	ListScans() ([]*Scan, error)

	// DeleteScan removes a scan
	DeleteScan(id string) error

	Close() error
}

// BoltDB implements DB using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the history database at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(scansBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveScan stores scan as JSON under its ID
func (b *BoltDB) SaveScan(scan *Scan) error {
	data, err := json.Marshal(scan)
	if err != nil {
		return fmt.Errorf("marshaling scan: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(scansBucket)).Put([]byte(scan.ID), data)
	})
}

// GetScan retrieves a scan by ID
func (b *BoltDB) GetScan(id string) (*Scan, error) {
	var scan *Scan
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(scansBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrScanNotFound, id)
		}
		return json.Unmarshal(data, &scan)
	})
	if err != nil {
		return nil, err
	}
	return scan, nil
}

// ListScans returns all scans, newest first
func (b *BoltDB) ListScans() ([]*Scan, error) {
	scans := make([]*Scan, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(scansBucket)).ForEach(func(k, v []byte) error {
			var scan Scan
			if err := json.Unmarshal(v, &scan); err != nil {
				return fmt.Errorf("unmarshaling scan %s: %w", k, err)
			}
			scans = append(scans, &scan)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(scans, func(i, j int) bool {
		return scans[i].CreatedAt.After(scans[j].CreatedAt)
	})
	return scans, nil
}

// DeleteScan removes a scan
func (b *BoltDB) DeleteScan(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(scansBucket))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrScanNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database
func (b *BoltDB) Close() error {
	return b.db.Close()
}

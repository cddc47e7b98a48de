package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/llm-gauge/internal/identity"
)

var responsesBucket = []byte("responses")

// defaultLockTimeout bounds how long a lookup waits for the store's file lock.
const defaultLockTimeout = 30 * time.Second

// Bolt persists responses in one bbolt file per cache scope.
// The file is opened for each lookup and closed before the lookup returns.
type Bolt struct {
	path        string
	lockTimeout time.Duration

	mu    sync.Mutex // serializes access to the file within this process
	group singleflight.Group
	count counters
}

// NewBolt returns a cache stored at <dir>/<storage name of scope>.db. scope is the UID of
// the SUT or the key of the annotator the cache belongs to.
func NewBolt(dir, scope string) (*Bolt, error) {
	if scope == "" {
		return nil, fmt.Errorf("cache identity is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Bolt{
		path:        filepath.Join(dir, identity.StorageName(scope)+".db"),
		lockTimeout: defaultLockTimeout,
	}, nil
}

// Path returns the location of the backing file.
func (c *Bolt) Path() string {
	return c.path
}

// withDB opens the store, runs fn and closes the store on every exit path.
func (c *Bolt) withDB(fn func(db *bolt.DB) error) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	db, err := bolt.Open(c.path, 0o644, &bolt.Options{Timeout: c.lockTimeout})
	if err != nil {
		return fmt.Errorf("failed to open cache %s: %w", c.path, err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close cache %s: %w", c.path, cerr)
		}
	}()
	return fn(db)
}

func (c *Bolt) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.withDB(func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(responsesBucket)
			if b == nil {
				return nil
			}
			if v := b.Get([]byte(key)); v != nil {
				// Values are only valid inside the transaction.
				value = append([]byte(nil), v...)
			}
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

func (c *Bolt) Put(_ context.Context, key string, value []byte) error {
	return c.withDB(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists(responsesBucket)
			if err != nil {
				return err
			}
			return b.Put([]byte(key), value)
		})
	})
}

func (c *Bolt) Stats() Stats                { return c.count.snapshot() }
func (c *Bolt) flight() *singleflight.Group { return &c.group }
func (c *Bolt) counters() *counters         { return &c.count }

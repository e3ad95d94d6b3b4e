// Package cache keeps the last device snapshot seen per device on disk so the
// detail screen can render immediately while the first fetch is in flight.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/airwatch-iot/gasmon/internal/api"
)

// entryTTL bounds how stale a cached snapshot may be.
const entryTTL = 24 * time.Hour

const keyPrefix = "device/"

// ErrMiss is returned by Get when nothing is cached for the device.
var ErrMiss = errors.New("cache miss")

type entry struct {
	Device   api.Device
	StoredAt time.Time
}

// DeviceCache is a badger-backed store of device snapshots.
type DeviceCache struct {
	db *badger.DB
}

// Open opens (or creates) the cache under dir.
func Open(dir string) (*DeviceCache, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open device cache %s: %w", dir, err)
	}
	return &DeviceCache{db: db}, nil
}

// OpenInMemory returns a cache that lives for the process only.
func OpenInMemory() (*DeviceCache, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory device cache: %w", err)
	}
	return &DeviceCache{db: db}, nil
}

// Put stores the snapshot of device.
func (c *DeviceCache) Put(ctx context.Context, device api.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(entry{Device: device, StoredAt: time.Now()})
	if err != nil {
		return fmt.Errorf("encode device %d: %w", device.ID, err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key(device.ID), raw).WithTTL(entryTTL)
		return txn.SetEntry(e)
	})
}

// Get returns the cached snapshot and when it was stored, or ErrMiss.
func (c *DeviceCache) Get(ctx context.Context, id int64) (api.Device, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return api.Device{}, time.Time{}, err
	}
	var valCopy []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		valCopy, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return api.Device{}, time.Time{}, ErrMiss
	}
	if err != nil {
		return api.Device{}, time.Time{}, fmt.Errorf("read device %d: %w", id, err)
	}

	var e entry
	if err := json.Unmarshal(valCopy, &e); err != nil {
		return api.Device{}, time.Time{}, fmt.Errorf("decode device %d: %w", id, err)
	}
	return e.Device, e.StoredAt, nil
}

// Delete drops the entry for id, e.g. after the server reports it gone.
func (c *DeviceCache) Delete(id int64) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Close flushes and closes the database.
func (c *DeviceCache) Close() error {
	return c.db.Close()
}

func key(id int64) []byte {
	return []byte(keyPrefix + strconv.FormatInt(id, 10))
}

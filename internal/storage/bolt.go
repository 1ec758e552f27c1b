// Package storage — bolt.go
//
// BoltDB-backed restart-durability snapshot cache for the voltage
// quality analytics agent.
//
// Schema (BoltDB bucket layout):
//
//	/windows
//	    key:   RFC3339 window_start
//	    value: JSON-encoded RmsWindow
//
//	/anomalies
//	    key:   RFC3339Nano started_at + "_" + phase + "_" + "0" (open,
//	           EndedAt unset) or "1" (EndedAt set)
//	    value: JSON-encoded Anomaly
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// This is a convenience cache, not a system of record: an empty or
// missing snapshot file is not an error, and the ring buffers it
// populates are always fully rebuildable from the live reading stream.
// On a fixed interval and on graceful shutdown, the current ring
// buffers are flushed here; on startup, Hydrate reloads them before the
// ingest pipeline starts.
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent
//     writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//   - CRC32 integrity check on database open (bbolt built-in).
//
// Failure modes:
//   - BoltDB file corruption: bbolt detects via CRC and returns an error
//     on Open(). The agent logs the error and continues without
//     restart-hydration (in-memory state starts cold, which is always
//     a valid state for this cache).
//   - Disk full: bbolt.Update() returns an error. The agent logs the
//     error and continues without persisting (in-memory state
//     preserved).
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/anomaly"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/window"
)

const (
	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	bucketWindows   = "windows"
	bucketAnomalies = "anomalies"
	bucketMeta      = "meta"
)

// DB wraps a BoltDB instance with typed accessors for the snapshot
// cache.
type DB struct {
	db *bolt.DB
}

// Open opens (or creates) the BoltDB database at the given path,
// initialising all required buckets and verifying the schema version.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketWindows, bucketAnomalies, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, agent requires %q — "+
					"delete the snapshot file and let it rebuild",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

func windowKey(w window.RmsWindow) []byte {
	return []byte(w.WindowStart.UTC().Format(time.RFC3339))
}

// anomalyKey ends in an open/closed marker so the opening and closing
// events of one deviation episode (same started_at and phase) get
// distinct keys, the opening one sorting first.
func anomalyKey(a anomaly.Anomaly) []byte {
	state := "1"
	if a.EndedAt == nil {
		state = "0"
	}
	return []byte(fmt.Sprintf("%s_%s_%s", a.StartedAt.UTC().Format(time.RFC3339Nano), a.Phase, state))
}

// SaveWindows replaces the windows bucket's contents with exactly the
// given windows. Called periodically with the current window ring
// buffer snapshot.
func (d *DB) SaveWindows(windows []window.RmsWindow) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketWindows)); err != nil {
			return fmt.Errorf("SaveWindows delete bucket: %w", err)
		}
		b, err := tx.CreateBucket([]byte(bucketWindows))
		if err != nil {
			return fmt.Errorf("SaveWindows recreate bucket: %w", err)
		}
		for _, w := range windows {
			data, err := json.Marshal(w)
			if err != nil {
				return fmt.Errorf("SaveWindows marshal: %w", err)
			}
			if err := b.Put(windowKey(w), data); err != nil {
				return fmt.Errorf("SaveWindows put: %w", err)
			}
		}
		return nil
	})
}

// SaveAnomalies replaces the anomalies bucket's contents with exactly
// the given anomalies. Called periodically with the current anomaly
// ring buffer snapshot.
func (d *DB) SaveAnomalies(anomalies []anomaly.Anomaly) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketAnomalies)); err != nil {
			return fmt.Errorf("SaveAnomalies delete bucket: %w", err)
		}
		b, err := tx.CreateBucket([]byte(bucketAnomalies))
		if err != nil {
			return fmt.Errorf("SaveAnomalies recreate bucket: %w", err)
		}
		for _, a := range anomalies {
			data, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("SaveAnomalies marshal: %w", err)
			}
			if err := b.Put(anomalyKey(a), data); err != nil {
				return fmt.Errorf("SaveAnomalies put: %w", err)
			}
		}
		return nil
	})
}

// LoadWindows returns every persisted RmsWindow, oldest first (BoltDB
// iterates keys in lexicographic order, which matches chronological
// order for RFC3339-formatted timestamps).
func (d *DB) LoadWindows() ([]window.RmsWindow, error) {
	var out []window.RmsWindow
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketWindows))
		return b.ForEach(func(_, v []byte) error {
			var w window.RmsWindow
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			out = append(out, w)
			return nil
		})
	})
	return out, err
}

// LoadAnomalies returns every persisted Anomaly, oldest first.
func (d *DB) LoadAnomalies() ([]anomaly.Anomaly, error) {
	var out []anomaly.Anomaly
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAnomalies))
		return b.ForEach(func(_, v []byte) error {
			var a anomaly.Anomaly
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
	})
	return out, err
}

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Persister stores runs outside the process so history survives restarts.
type Persister interface {
	SaveRun(ctx context.Context, run *Run) error
	DeleteRun(ctx context.Context, id string) error
	LoadRuns(ctx context.Context) ([]*Run, error)
	Clear(ctx context.Context) error
	Close() error
}

var runPrefix = []byte("run/")

func runKey(id string) []byte {
	return append(bytes.Clone(runPrefix), id...)
}

// BadgerPersister keeps runs as JSON values in a badger database, one key
// per run.
type BadgerPersister struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the run database in dir. An empty dir opens
// an in-memory database.
func OpenBadger(dir string, verbose bool) (*BadgerPersister, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}

	if verbose {
		opts = opts.WithLogger(badgerLogger{})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open run database: %w", err)
	}
	return &BadgerPersister{db: db}, nil
}

// SaveRun writes run under its id.
func (p *BadgerPersister) SaveRun(ctx context.Context, run *Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run.ID), data)
	})
}

// DeleteRun removes a run. Deleting a missing run is not an error.
func (p *BadgerPersister) DeleteRun(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(runKey(id))
	})
}

// LoadRuns returns every stored run in key order. Entries that no longer
// decode are logged and skipped.
func (p *BadgerPersister) LoadRuns(ctx context.Context) ([]*Run, error) {
	var runs []*Run
	err := p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(runPrefix); it.ValidForPrefix(runPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var run Run
				if err := json.Unmarshal(val, &run); err != nil {
					log.Printf("⚠️  Skipping unreadable run %s: %v", item.Key(), err)
					return nil
				}
				runs = append(runs, &run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// Clear deletes every stored run.
func (p *BadgerPersister) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.DropPrefix(runPrefix)
}

// Close flushes and closes the database.
func (p *BadgerPersister) Close() error {
	return p.db.Close()
}

// badgerLogger routes badger's internal logging through the standard logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	log.Printf("❌ badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	log.Printf("⚠️  badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	log.Printf("💾 badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {}

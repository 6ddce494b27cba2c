// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package modelstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/warden/internal/anomaly"
)

const modelKeyPrefix = "model:"

// BadgerBackend keeps bundles in a BadgerDB keyspace.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadgerBackend opens (or creates) a BadgerDB at dir. The backend closes
// the database on Close.
func OpenBadgerBackend(dir string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Put stores data in a single transaction that first checks the key is free.
// Two transactions racing for one key conflict on commit and the loser gets
// ErrBundleExists.
func (b *BadgerBackend) Put(_ context.Context, key string, data []byte) error {
	k := []byte(modelKeyPrefix + key)
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		switch {
		case err == nil:
			return ErrBundleExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("check model: %w", err)
		}
		if err := txn.Set(k, data); err != nil {
			return fmt.Errorf("set model: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrBundleExists) || errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrBundleExists, key)
	}
	return err
}

// Get reads a bundle.
func (b *BadgerBackend) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(modelKeyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", anomaly.ErrModelNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return data, nil
}

// List returns bundle keys in lexical order.
func (b *BadgerBackend) List(_ context.Context) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(modelKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return keys, nil
}

// Delete removes a bundle. Deleting a missing key is not an error.
func (b *BadgerBackend) Delete(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(modelKeyPrefix + key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete model: %w", err)
		}
		return nil
	})
}

// Close closes the underlying database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

/*
Copyright 2023-2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package content owns object payload bytes on the local filesystem.  The
// layout is STORAGE_ROOT/{bucketID}/{uuid} for committed payloads and
// STORAGE_ROOT/tmp/{sessionID} for in-flight resumable uploads.  All
// structured state lives in the metadata database, never here.
package content

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

// Options configures the content store.
type Options struct {
	// Root is the base path for all payloads.
	Root string
}

// AddFlags registers content store options.
func (o *Options) AddFlags(f *pflag.FlagSet) {
	root := os.Getenv("STORAGE_ROOT")
	if root == "" {
		root = "/var/lib/cumulus/storage"
	}

	f.StringVar(&o.Root, "storage-root", root, "Base path for object payloads.")
}

// Store is a byte-addressed blob store.
type Store struct {
	root string
}

// New creates the store, making the root and temp directories.
func New(options *Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(options.Root, "tmp"), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &Store{root: options.Root}, nil
}

// Write persists a payload under a fresh path and returns the path relative
// to the root.  The relative path is what's persisted in metadata so the
// root can move.
func (s *Store) Write(bucketID string, data []byte) (string, error) {
	dir := filepath.Join(s.root, bucketID)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create bucket directory: %w", err)
	}

	rel := filepath.Join(bucketID, uuid.New().String())

	if err := os.WriteFile(filepath.Join(s.root, rel), data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write payload: %w", err)
	}

	return rel, nil
}

// Read returns the full payload at a path previously returned by Write.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, path))
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	return data, nil
}

// Remove deletes a payload.  Missing files are fine, deletion must be
// idempotent under retry.
func (s *Store) Remove(path string) error {
	if err := os.Remove(filepath.Join(s.root, path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove payload: %w", err)
	}

	return nil
}

// TempPath returns the temp region path for a resumable session.
func (s *Store) TempPath(sessionID string) string {
	return filepath.Join("tmp", sessionID)
}

// AppendTemp appends a chunk to a session's temp region at the given offset.
// The write is positional so a replayed chunk can never corrupt earlier
// bytes.
func (s *Store) AppendTemp(sessionID string, offset int64, data []byte) error {
	file, err := os.OpenFile(filepath.Join(s.root, s.TempPath(sessionID)), os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open temp region: %w", err)
	}

	defer file.Close()

	if _, err := file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("failed to append chunk: %w", err)
	}

	return nil
}

// ReadTemp returns the accumulated bytes of a session.
func (s *Store) ReadTemp(sessionID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, s.TempPath(sessionID)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read temp region: %w", err)
	}

	return data, nil
}

// RemoveTemp deletes a session's temp region.
func (s *Store) RemoveTemp(sessionID string) error {
	return s.Remove(s.TempPath(sessionID))
}

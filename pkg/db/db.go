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

// Package db owns the metadata database.  All structured state lives here,
// the content store only ever holds opaque bytes.
package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"

	// Register the pure Go sqlite driver.
	_ "modernc.org/sqlite"

	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// Options configures the metadata database.
type Options struct {
	// Path is the sqlite database file, ":memory:" style paths work for
	// testing.
	Path string
}

// AddFlags registers database options, DATABASE_PATH provides the default.
func (o *Options) AddFlags(f *pflag.FlagSet) {
	path := os.Getenv("DATABASE_PATH")
	if path == "" {
		path = "/var/lib/cumulus/cumulus.db"
	}

	f.StringVar(&o.Path, "database-path", path, "The sqlite database file backing all metadata.")
}

// Open opens the database, applies pragmas suitable for a concurrent HTTP
// server, and runs the schema migration.
func Open(ctx context.Context, options *Options) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)", options.Path)

	database, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database.SetConnMaxIdleTime(time.Minute)

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := database.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return database, nil
}

// WithTx runs fn inside a transaction, rolling back on error.  Transactions
// are short and per-operation, never spanning requests.
func WithTx(ctx context.Context, database *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	log.Stage(ctx, log.StageRepo)

	tx, err := database.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		//nolint:errcheck
		tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

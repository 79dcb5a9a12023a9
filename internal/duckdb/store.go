// Package duckdb records consensus runs in DuckDB: run parameters, input
// file fingerprints, the evidence observed and the decision taken at each
// position. The tables are append-only and queryable after the run.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	goduckdb "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection for run provenance.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id VARCHAR PRIMARY KEY,
		task_id VARCHAR,
		started_at TIMESTAMP,
		vc_threshold DOUBLE,
		min_vc_score BIGINT,
		ref_num BIGINT,
		failed BIGINT,
		status VARCHAR,
		finished_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS inputs (
		run_id VARCHAR,
		ref_order BIGINT,
		caller VARCHAR,
		aligner VARCHAR,
		path VARCHAR,
		size BIGINT,
		mod_time TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS observations (
		run_id VARCHAR,
		task_id VARCHAR,
		ref_order BIGINT,
		pos BIGINT,
		ref VARCHAR,
		alt VARCHAR,
		caller VARCHAR,
		aligner VARCHAR,
		filter VARCHAR,
		freq VARCHAR,
		qual DOUBLE,
		depth BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS decisions (
		run_id VARCHAR,
		task_id VARCHAR,
		ref_order BIGINT,
		pos BIGINT,
		ref VARCHAR,
		alt VARCHAR,
		score BIGINT,
		status VARCHAR,
		detail VARCHAR
	)`,
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// appendRows runs fn against an Appender on table and flushes it.
func (s *Store) appendRows(ctx context.Context, table string, fn func(*goduckdb.Appender) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	if err := fn(appender); err != nil {
		return err
	}
	return appender.Flush()
}

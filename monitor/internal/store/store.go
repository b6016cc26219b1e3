// Package store provides the data access layer for the mntr database.
//
// The store receives an already-opened *sql.DB (see dbopen) and wraps it
// with typed accessors for pages, snapshots, notification settings, and the
// check log.
package store

import "database/sql"

// Store wraps the mntr database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

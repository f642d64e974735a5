// Package store opens the database connections backing the audit trail.
package store

// Store is an open connection to a backing database
type Store interface {
	// ProjectID returns the cloud project the store lives in
	ProjectID() string
	// Database returns the database name within the project
	Database() string
	// Close releases any resources held by the store
	Close() error
}

package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// EmulatorHostEnv points the client at a local Firestore emulator
const EmulatorHostEnv = "FIRESTORE_EMULATOR_HOST"

// ErrMissingProject is returned when no project is configured for the store
var ErrMissingProject = errors.New("firestore project ID is required")

// FirestoreClient holds the Firestore connection the audit trail writes to
type FirestoreClient struct {
	client       *firestore.Client
	projectID    string
	database     string
	emulatorHost string
}

var _ Store = (*FirestoreClient)(nil)

// FirestoreConfig holds configuration for the audit Firestore connection
type FirestoreConfig struct {
	ProjectID   string // required; the audit config falls back to the auth project
	Database    string // optional, "(default)" when empty
	Credentials string // optional service account JSON; ignored with the emulator
}

// NewFirestoreClient opens the Firestore database holding audit records.
// The connection is established lazily on first use.
func NewFirestoreClient(ctx context.Context, cfg FirestoreConfig) (*FirestoreClient, error) {
	if cfg.ProjectID == "" {
		return nil, ErrMissingProject
	}

	emulatorHost := os.Getenv(EmulatorHostEnv)
	database := cfg.Database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, database, clientOptions(cfg, emulatorHost)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open firestore %s/%s: %w", cfg.ProjectID, database, err)
	}

	log.Info().
		Str("project", cfg.ProjectID).
		Str("database", database).
		Str("emulator", emulatorHost).
		Msg("audit store opened")

	return &FirestoreClient{
		client:       client,
		projectID:    cfg.ProjectID,
		database:     database,
		emulatorHost: emulatorHost,
	}, nil
}

// clientOptions drops the credentials file when talking to the emulator
func clientOptions(cfg FirestoreConfig, emulatorHost string) []option.ClientOption {
	if cfg.Credentials == "" || emulatorHost != "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.Credentials)}
}

// Close releases the connection. Calling it again is a no-op.
func (f *FirestoreClient) Close() error {
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}

// Client returns the underlying Firestore client
func (f *FirestoreClient) Client() *firestore.Client {
	return f.client
}

// ProjectID returns the GCP project ID
func (f *FirestoreClient) ProjectID() string {
	return f.projectID
}

// Database returns the Firestore database name
func (f *FirestoreClient) Database() string {
	return f.database
}

// Emulated reports whether the store talks to the Firestore emulator
func (f *FirestoreClient) Emulated() bool {
	return f.emulatorHost != ""
}

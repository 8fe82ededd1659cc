// Package store persists conference rows, one table per polo.
//
// Backends:
//   - memory     process-local, used by tests and the CLI dry runs
//   - sheets     Google Sheets, one worksheet per polo (default)
//   - mongo      MongoDB collection "conferencias"
//   - firestore  Firestore collection "conferencias"
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

// Backend names accepted by Open
const (
	BackendMemory    = "memory"
	BackendSheets    = "sheets"
	BackendMongo     = "mongo"
	BackendFirestore = "firestore"
)

// ErrNoPolo is returned when a call names no polo
var ErrNoPolo = errors.New("store: polo is required")

// Store appends and reads conference rows. Rows are returned in append order.
type Store interface {
	Append(ctx context.Context, polo string, rows []model.Row) error
	LoadAll(ctx context.Context, polo string) ([]model.Row, error)
	Close() error
}

// Config selects and configures a backend
type Config struct {
	Backend           string
	SpreadsheetID     string
	CredentialsFile   string
	MongoURI          string
	MongoDatabase     string
	FirestoreProject  string
	FirestoreDatabase string
}

// Open builds the configured backend
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSheets:
		return NewSheetsFromFile(ctx, cfg.SpreadsheetID, cfg.CredentialsFile)
	case BackendMongo:
		return NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case BackendFirestore:
		return NewFirestore(ctx, cfg.FirestoreProject, cfg.FirestoreDatabase)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

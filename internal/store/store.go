package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetBuyerContact retrieves the buyer's email and name for notifications.
// Users are owned by another service; this is a read-only lookup.
func (s *Store) GetBuyerContact(ctx context.Context, buyerID int64) (*models.BuyerContact, error) {
	var contact models.BuyerContact
	err := s.db.GetContext(ctx, &contact,
		"SELECT id, email, name FROM users WHERE id = $1", buyerID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("buyer not found: %d", buyerID)
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

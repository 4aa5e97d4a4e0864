package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"leadgen/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store wraps the Postgres connection pool and exposes every query the
// pipeline stages need. Stage packages depend on the narrow interface they
// actually call (see e.g. classify.Store), not on *Store itself.
type Store struct {
	db *sqlx.DB
}

// NewStore opens and pings a Postgres connection pool.
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

// NewFromDB wraps an already-open *sqlx.DB, used by tests with sqlmock.
func NewFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection.
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetMarket retrieves a market by ID.
func (s *Store) GetMarket(ctx context.Context, id int64) (*models.Market, error) {
	var m models.Market
	err := s.db.GetContext(ctx, &m, "SELECT * FROM markets WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetVertical retrieves a vertical by ID.
func (s *Store) GetVertical(ctx context.Context, id int64) (*models.Vertical, error) {
	var v models.Vertical
	err := s.db.GetContext(ctx, &v, "SELECT * FROM verticals WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetOffer retrieves an offer by ID.
func (s *Store) GetOffer(ctx context.Context, id int64) (*models.Offer, error) {
	var o models.Offer
	err := s.db.GetContext(ctx, &o, "SELECT * FROM offers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetSourceByID retrieves a source by ID.
func (s *Store) GetSourceByID(ctx context.Context, id int64) (*models.Source, error) {
	var src models.Source
	err := s.db.GetContext(ctx, &src, "SELECT * FROM sources WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// GetSourceByKey retrieves a source by its operator-assigned key.
func (s *Store) GetSourceByKey(ctx context.Context, key string) (*models.Source, error) {
	var src models.Source
	err := s.db.GetContext(ctx, &src, "SELECT * FROM sources WHERE source_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// FindSourcesByHostname retrieves every source whose hostname matches,
// leaving path-prefix ranking to the caller.
func (s *Store) FindSourcesByHostname(ctx context.Context, hostname string) ([]models.Source, error) {
	var sources []models.Source
	err := s.db.SelectContext(ctx, &sources, "SELECT * FROM sources WHERE hostname = $1", hostname)
	return sources, err
}

// GetValidationPolicy retrieves the active validation policy for an offer.
func (s *Store) GetValidationPolicy(ctx context.Context, offerID int64) (*models.ValidationPolicy, error) {
	var p models.ValidationPolicy
	err := s.db.GetContext(ctx, &p, `
		SELECT vp.*
		FROM offers o
		JOIN validation_policies vp ON vp.id = o.validation_policy_id
		WHERE o.id = $1 AND vp.is_active = true`, offerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetRoutingPolicy retrieves the active routing policy for an offer.
func (s *Store) GetRoutingPolicy(ctx context.Context, offerID int64) (*models.RoutingPolicy, error) {
	var p models.RoutingPolicy
	err := s.db.GetContext(ctx, &p, `
		SELECT rp.*
		FROM offers o
		JOIN routing_policies rp ON rp.id = o.routing_policy_id
		WHERE o.id = $1 AND rp.is_active = true`, offerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

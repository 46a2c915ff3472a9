package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/crowdprices/evidence/internal/core/ports"
)

// querier is the common surface of *sql.DB and *sql.Tx so every repository
// works both inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func reposFor(q querier) ports.Repositories {
	return ports.Repositories{
		Proofs:       &ProofRepository{q: q},
		Prices:       &PriceRepository{q: q},
		PriceTags:    &PriceTagRepository{q: q},
		ReceiptItems: &ReceiptItemRepository{q: q},
		Predictions:  &PredictionRepository{q: q},
		Locations:    &LocationRepository{q: q},
		Products:     &ProductRepository{q: q},
		Users:        &UserRepository{q: q},
	}
}

// Repos returns pool-backed repositories for plain reads.
func (s *Store) Repos() ports.Repositories {
	return reposFor(s.db)
}

// Within runs fn inside a single transaction. Every mutation sequence
// (validate, write, duplicate-tag, counter-update) goes through here so a
// crash leaves either the full effect or none.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, r ports.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, reposFor(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables on startup. Bootstrap DDL is serialized
// across api/worker startups with an advisory lock.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026053101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS locations (
	id BIGSERIAL PRIMARY KEY,
	osm_id BIGINT,
	osm_type TEXT,
	website_url TEXT,
	price_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	price_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS products (
	code TEXT PRIMARY KEY,
	name TEXT,
	price_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS proofs (
	id BIGSERIAL PRIMARY KEY,
	type TEXT NOT NULL,
	location_id BIGINT REFERENCES locations(id),
	location_osm_id BIGINT,
	location_osm_type TEXT,
	date DATE,
	currency TEXT,
	owner TEXT,
	file_path TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	price_count INTEGER NOT NULL DEFAULT 0,
	prediction_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_proofs_owner ON proofs(owner);
CREATE INDEX IF NOT EXISTS idx_proofs_content_hash ON proofs(content_hash);

CREATE TABLE IF NOT EXISTS prices (
	id BIGSERIAL PRIMARY KEY,
	product_code TEXT,
	category_tag TEXT,
	labels_tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	origins_tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	price_per TEXT,
	amount NUMERIC(12,4) NOT NULL,
	is_discounted BOOLEAN NOT NULL DEFAULT FALSE,
	amount_without_discount NUMERIC(12,4),
	discount_type TEXT,
	currency TEXT NOT NULL,
	date DATE NOT NULL,
	location_id BIGINT REFERENCES locations(id),
	location_osm_id BIGINT,
	location_osm_type TEXT,
	proof_id BIGINT REFERENCES proofs(id),
	owner TEXT,
	receipt_quantity INTEGER,
	duplicate_of BIGINT REFERENCES prices(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prices_proof_id ON prices(proof_id);
CREATE INDEX IF NOT EXISTS idx_prices_product_code ON prices(product_code);
CREATE INDEX IF NOT EXISTS idx_prices_location_date ON prices(location_id, date);

CREATE TABLE IF NOT EXISTS price_tags (
	id BIGSERIAL PRIMARY KEY,
	proof_id BIGINT NOT NULL REFERENCES proofs(id) ON DELETE CASCADE,
	y_min DOUBLE PRECISION NOT NULL,
	x_min DOUBLE PRECISION NOT NULL,
	y_max DOUBLE PRECISION NOT NULL,
	x_max DOUBLE PRECISION NOT NULL,
	price_id BIGINT REFERENCES prices(id),
	status INTEGER,
	created_by TEXT,
	updated_by TEXT,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	prediction_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_tags_proof_id ON price_tags(proof_id);
CREATE INDEX IF NOT EXISTS idx_price_tags_price_id ON price_tags(price_id);

CREATE TABLE IF NOT EXISTS receipt_items (
	id BIGSERIAL PRIMARY KEY,
	proof_id BIGINT NOT NULL REFERENCES proofs(id) ON DELETE CASCADE,
	price_id BIGINT REFERENCES prices(id),
	item_order INTEGER NOT NULL,
	predicted_data JSONB NOT NULL DEFAULT '{}'::jsonb,
	status INTEGER,
	schema_version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_receipt_items_proof_id ON receipt_items(proof_id);

CREATE TABLE IF NOT EXISTS proof_predictions (
	id BIGSERIAL PRIMARY KEY,
	proof_id BIGINT NOT NULL REFERENCES proofs(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	model_name TEXT NOT NULL,
	model_version TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL DEFAULT 1,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	confidence DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (proof_id, model_name)
);

CREATE TABLE IF NOT EXISTS price_tag_predictions (
	id BIGSERIAL PRIMARY KEY,
	price_tag_id BIGINT NOT NULL REFERENCES price_tags(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	model_name TEXT NOT NULL,
	model_version TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL DEFAULT 1,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	confidence DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (price_tag_id, model_name)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

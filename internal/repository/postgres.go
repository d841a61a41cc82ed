package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"renterchat/internal/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PostgresRepository serves the catalog from PostgreSQL and persists
// category embeddings in a pgvector column
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	// Disable prepared statement caching to avoid "unnamed prepared statement does not exist" errors
	if strings.Contains(dsn, "://") {
		if !strings.Contains(dsn, "?") {
			dsn += "?prefer_simple_protocol=true"
		} else {
			dsn += "&prefer_simple_protocol=true"
		}
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an existing connection pool
func NewPostgresRepositoryFromDB(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const communityColumns = `id, name, COALESCE(location, '') AS location, amenities`

// Communities implements CatalogRepository
func (r *PostgresRepository) Communities(ctx context.Context) ([]model.Community, error) {
	var communities []model.Community
	query := `SELECT ` + communityColumns + ` FROM communities ORDER BY id`
	if err := r.db.SelectContext(ctx, &communities, query); err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	return communities, nil
}

// Community implements CatalogRepository
func (r *PostgresRepository) Community(ctx context.Context, id string) (*model.Community, error) {
	var community model.Community
	query := `SELECT ` + communityColumns + ` FROM communities WHERE id = $1`
	err := r.db.GetContext(ctx, &community, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("community %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get community: %w", err)
	}
	return &community, nil
}

// Units implements CatalogRepository
func (r *PostgresRepository) Units(ctx context.Context, communityID string) ([]model.Unit, error) {
	if err := r.requireCommunity(ctx, communityID); err != nil {
		return nil, err
	}

	var units []model.Unit
	query := `
		SELECT
			unit_id, bedrooms, bathrooms, sqft, COALESCE(description, '') AS description,
			floor, to_char(available_date, 'YYYY-MM-DD') AS available_date, base_rent, available
		FROM units
		WHERE community_id = $1
		ORDER BY unit_id
	`
	if err := r.db.SelectContext(ctx, &units, query, communityID); err != nil {
		return nil, fmt.Errorf("failed to fetch units: %w", err)
	}
	return units, nil
}

type petPolicyRow struct {
	PetType string `db:"pet_type"`
	model.PetPolicy
}

// PetPolicies implements CatalogRepository
func (r *PostgresRepository) PetPolicies(ctx context.Context, communityID string) (map[string]model.PetPolicy, error) {
	if err := r.requireCommunity(ctx, communityID); err != nil {
		return nil, err
	}

	var rows []petPolicyRow
	query := `
		SELECT
			pet_type, allowed, COALESCE(fee, 0) AS fee, COALESCE(deposit, 0) AS deposit,
			COALESCE(monthly_rent, 0) AS monthly_rent, COALESCE(max_pets, 0) AS max_pets,
			COALESCE(weight_limit, 0) AS weight_limit, COALESCE(notes, '') AS notes
		FROM pet_policies
		WHERE community_id = $1
	`
	if err := r.db.SelectContext(ctx, &rows, query, communityID); err != nil {
		return nil, fmt.Errorf("failed to fetch pet policies: %w", err)
	}

	policies := make(map[string]model.PetPolicy, len(rows))
	for _, row := range rows {
		policies[CanonicalPetKey(row.PetType)] = row.PetPolicy
	}
	return policies, nil
}

// Specials implements CatalogRepository
func (r *PostgresRepository) Specials(ctx context.Context) ([]model.Special, error) {
	var specials []model.Special
	query := `
		SELECT
			name, discount_type, amount,
			COALESCE(to_char(expires, 'YYYY-MM-DD'), '') AS expires, communities
		FROM specials
		ORDER BY name
	`
	if err := r.db.SelectContext(ctx, &specials, query); err != nil {
		return nil, fmt.Errorf("failed to fetch specials: %w", err)
	}
	return specials, nil
}

// PetTypes implements CatalogRepository
func (r *PostgresRepository) PetTypes(ctx context.Context) ([]string, error) {
	var raw []string
	if err := r.db.SelectContext(ctx, &raw, `SELECT DISTINCT pet_type FROM pet_policies`); err != nil {
		return nil, fmt.Errorf("failed to fetch pet types: %w", err)
	}

	seen := map[string]bool{}
	var out []string
	for _, p := range raw {
		id := CanonicalPetKey(p)
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// LoadEmbeddings returns the stored vectors of one catalog for one embedder
func (r *PostgresRepository) LoadEmbeddings(ctx context.Context, catalog, embedder string) (map[string][]float32, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT category_id, embedding FROM category_embeddings WHERE catalog = $1 AND model = $2`,
		catalog, embedder,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	out := map[string][]float32{}
	for rows.Next() {
		var id string
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		out[id] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read embeddings: %w", err)
	}
	return out, nil
}

// SaveEmbeddings upserts vectors of one catalog for one embedder in a
// single transaction
func (r *PostgresRepository) SaveEmbeddings(ctx context.Context, catalog, embedder string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO category_embeddings (catalog, category_id, model, embedding, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (catalog, category_id, model)
		DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, catalog, id, embedder, pgvector.NewVector(vectors[id])); err != nil {
			return fmt.Errorf("category %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) requireCommunity(ctx context.Context, communityID string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM communities WHERE id = $1)`, communityID); err != nil {
		return fmt.Errorf("failed to check community: %w", err)
	}
	if !exists {
		return fmt.Errorf("community %q: %w", communityID, ErrNotFound)
	}
	return nil
}

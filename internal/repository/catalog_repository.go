package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/dashlens/internal/domain"
)

// catalogRepository implements CatalogRepository on Postgres.
type catalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository creates a new Postgres-backed catalog repository.
func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pool: pool}
}

// ReplaceDistricts swaps the whole catalog in one transaction so readers
// never observe a partially loaded table.
func (r *catalogRepository) ReplaceDistricts(ctx context.Context, districts []domain.District) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM districts`)
	for _, d := range districts {
		batch.Queue(
			`INSERT INTO districts (code, name, region) VALUES ($1, $2, $3)`,
			d.Code, d.Name, d.Region)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to replace districts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit district catalog: %w", err)
	}
	return nil
}

func (r *catalogRepository) ListDistricts(ctx context.Context) ([]domain.District, error) {
	return r.queryDistricts(ctx, `SELECT code, name, region FROM districts ORDER BY code`)
}

func (r *catalogRepository) ListDistrictsByRegion(ctx context.Context, region string) ([]domain.District, error) {
	return r.queryDistricts(ctx,
		`SELECT code, name, region FROM districts WHERE region = $1 ORDER BY code`, region)
}

func (r *catalogRepository) GetDistrict(ctx context.Context, code string) (domain.District, error) {
	var d domain.District
	err := r.pool.QueryRow(ctx,
		`SELECT code, name, region FROM districts WHERE code = $1`, code).
		Scan(&d.Code, &d.Name, &d.Region)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.District{}, fmt.Errorf("district %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return domain.District{}, fmt.Errorf("failed to get district: %w", err)
	}
	return d, nil
}

func (r *catalogRepository) ListRegions(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT region FROM districts ORDER BY region`)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	defer rows.Close()

	regions := []string{}
	for rows.Next() {
		var region string
		if err := rows.Scan(&region); err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		regions = append(regions, region)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read regions: %w", err)
	}
	return regions, nil
}

func (r *catalogRepository) queryDistricts(ctx context.Context, sql string, args ...any) ([]domain.District, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}
	defer rows.Close()

	districts := []domain.District{}
	for rows.Next() {
		var d domain.District
		if err := rows.Scan(&d.Code, &d.Name, &d.Region); err != nil {
			return nil, fmt.Errorf("failed to scan district: %w", err)
		}
		districts = append(districts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read districts: %w", err)
	}
	return districts, nil
}

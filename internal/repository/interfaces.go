package repository

import (
	"context"
	"errors"

	"github.com/rpattn/dashlens/internal/domain"
)

// ErrNotFound is returned when a requested key or record does not exist.
var ErrNotFound = errors.New("not found")

// StateRepository defines the interface for persisted page-state snapshots.
// Values are opaque JSON payloads; versioning and migration happen above
// this layer.
type StateRepository interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// CatalogRepository defines the interface for the location reference catalog.
type CatalogRepository interface {
	ReplaceDistricts(ctx context.Context, districts []domain.District) error
	ListDistricts(ctx context.Context) ([]domain.District, error)
	ListDistrictsByRegion(ctx context.Context, region string) ([]domain.District, error)
	GetDistrict(ctx context.Context, code string) (domain.District, error)
	ListRegions(ctx context.Context) ([]string, error)
}

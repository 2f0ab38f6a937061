// internal/catalog/service.go
package catalog

import (
	"context"
)

// Service is the read side of the catalog used by the HTTP handler.
type Service interface {
	FindByID(ctx context.Context, id int64) (*Book, error)
	Search(ctx context.Context, term string) ([]Book, error)
	All(ctx context.Context) ([]Book, error)
}

var _ Service = (*Store)(nil)

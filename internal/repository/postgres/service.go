package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
)

func (r *serviceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	var svc model.Service
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &svc, query, id); err != nil {
		return nil, notFound(err)
	}
	return &svc, nil
}

func (r *resourceRepository) Get(ctx context.Context, orgID, id uuid.UUID) (*model.Resource, error) {
	var res model.Resource
	query := `SELECT ` + resourceColumns + ` FROM resources
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &res, query, id, orgID); err != nil {
		return nil, notFound(err)
	}
	return &res, nil
}

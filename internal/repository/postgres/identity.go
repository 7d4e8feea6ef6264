package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
)

const userColumns = `id, organization_id, name, email, role, email_notification_enabled,
	notification_enabled, created_at, updated_at, deleted_at`

func (r *identityRepository) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *identityRepository) GetOrganization(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	var org model.Organization
	query := `
		SELECT id, name, contact_email, status, email_notification, new_booking_notification,
			created_at, updated_at, deleted_at
		FROM organizations
		WHERE id = $1 AND deleted_at IS NULL
	`
	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

func (r *identityRepository) ListOrganizationAdmins(ctx context.Context, orgID uuid.UUID) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE organization_id = $1 AND role = $2 AND deleted_at IS NULL
		ORDER BY email`
	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, query, orgID, model.UserRoleAdmin); err != nil {
		return nil, fmt.Errorf("failed to list organization admins: %w", err)
	}
	return users, nil
}

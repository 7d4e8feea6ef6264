package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/ranking"
)

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments a WHERE a.id = $1 AND a.deleted_at IS NULL`
	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, notFound(err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments a
		WHERE a.user_id = $1 AND a.deleted_at IS NULL
		ORDER BY a.created_at DESC, a.seq DESC`
	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments a
		WHERE a.organization_id = $1 AND a.deleted_at IS NULL`
	args := []interface{}{orgID}

	if filter != nil {
		if filter.Status != "" {
			args = append(args, filter.Status)
			query += fmt.Sprintf(" AND a.status = $%d", len(args))
		}
		if filter.ServiceID != nil {
			args = append(args, *filter.ServiceID)
			query += fmt.Sprintf(" AND a.service_id = $%d", len(args))
		}
		if !filter.From.IsZero() {
			args = append(args, filter.From)
			query += fmt.Sprintf(" AND a.created_at >= $%d", len(args))
		}
		if !filter.To.IsZero() {
			args = append(args, filter.To)
			query += fmt.Sprintf(" AND a.created_at < $%d", len(args))
		}
	}
	query += " ORDER BY a.created_at DESC, a.seq DESC"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListPartition(ctx context.Context, key ranking.PartitionKey) ([]ranking.Entry, error) {
	return listPartition(ctx, r.db, key)
}

func (r *appointmentRepository) RecentCompleted(ctx context.Context, key ranking.PartitionKey, limit int) ([]ranking.Sample, error) {
	where, args := partitionFilter(key, 1)
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT a.created_at, a.updated_at FROM appointments a
		WHERE %s AND a.status = 'completed' AND a.deleted_at IS NULL
		ORDER BY a.updated_at DESC
		LIMIT $%d`, where, len(args))

	var samples []ranking.Sample
	if err := r.db.SelectContext(ctx, &samples, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load completed appointments: %w", err)
	}
	return samples, nil
}

func (r *appointmentRepository) ListDueReminders(ctx context.Context, from, to time.Time) ([]*model.Reminder, error) {
	query := `
		SELECT a.id AS appointment_id, a.token_number, u.name AS user_name, u.email AS user_email,
			sv.name AS service_name, s.start_time
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		JOIN users u ON u.id = a.user_id
		JOIN services sv ON sv.id = a.service_id
		WHERE a.status = 'confirmed' AND a.reminder_sent = FALSE AND a.deleted_at IS NULL
			AND s.start_time > $1 AND s.start_time <= $2
		ORDER BY s.start_time
	`
	var reminders []*model.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	return reminders, nil
}

func (r *appointmentRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE appointments SET reminder_sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return checkAffected(res)
}

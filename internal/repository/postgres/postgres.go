package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/queue-api/internal/repository"
)

type appointmentRepository struct {
	db *sqlx.DB
}

type serviceRepository struct {
	db *sqlx.DB
}

type resourceRepository struct {
	db *sqlx.DB
}

type slotRepository struct {
	*BaseRepository
}

type identityRepository struct {
	db *sqlx.DB
}

type notificationRepository struct {
	db *sqlx.DB
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func NewServiceRepository(db *sqlx.DB) repository.ServiceRepository {
	return &serviceRepository{db: db}
}

func NewResourceRepository(db *sqlx.DB) repository.ResourceRepository {
	return &resourceRepository{db: db}
}

func NewSlotRepository(base *BaseRepository) repository.SlotRepository {
	return &slotRepository{BaseRepository: base}
}

func NewIdentityRepository(db *sqlx.DB) repository.IdentityRepository {
	return &identityRepository{db: db}
}

func NewNotificationRepository(db *sqlx.DB) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

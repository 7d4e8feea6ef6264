package model

import (
	"github.com/google/uuid"
)

// User roles
const (
	UserRoleCustomer = "customer"
	UserRoleAdmin    = "admin"
)

// User is a customer or an organization admin. Only the fields the queue
// engine reads are mapped.
type User struct {
	Base
	OrganizationID           *uuid.UUID `json:"organization_id,omitempty" db:"organization_id"`
	Name                     string     `json:"name" db:"name"`
	Email                    string     `json:"email" db:"email"`
	Role                     string     `json:"role" db:"role"`
	EmailNotificationEnabled bool       `json:"email_notification_enabled" db:"email_notification_enabled"`
	NotificationEnabled      bool       `json:"notification_enabled" db:"notification_enabled"`
}

func (u *User) IsAdminOf(orgID uuid.UUID) bool {
	return u.Role == UserRoleAdmin && u.OrganizationID != nil && *u.OrganizationID == orgID
}

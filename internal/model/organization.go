package model

type Organization struct {
	Base
	Name                   string `json:"name" db:"name"`
	ContactEmail           string `json:"contact_email" db:"contact_email"`
	Status                 string `json:"status" db:"status"`
	EmailNotification      bool   `json:"email_notification" db:"email_notification"`
	NewBookingNotification bool   `json:"new_booking_notification" db:"new_booking_notification"`
}

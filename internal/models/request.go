package models

import "time"

// RequestStatus tracks whether a student request has been answered.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pendiente"
	RequestResponded RequestStatus = "respondida"
)

// Request is a free-text help or finance request opened by a student.
type Request struct {
	ID          string        `db:"id" json:"id"`
	UserID      string        `db:"user_id" json:"user_id"`
	Subject     string        `db:"subject" json:"subject"`
	Message     string        `db:"message" json:"message"`
	Status      RequestStatus `db:"status" json:"status"`
	Response    *string       `db:"response" json:"response,omitempty"`
	RespondedBy *string       `db:"responded_by" json:"responded_by,omitempty"`
	RespondedAt *time.Time    `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	UserID   string
	Status   RequestStatus
	Page     int
	PageSize int
}

package models

import "time"

// NotificationType groups notifications by the entity that triggered them.
type NotificationType string

const (
	NotificationDocument NotificationType = "document"
	NotificationRequest  NotificationType = "request"
	NotificationStage    NotificationType = "stage"
	NotificationPayment  NotificationType = "payment"
)

// Notification is a write-once user-facing message.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Title     string           `db:"title" json:"title"`
	Body      string           `db:"body" json:"body"`
	Type      NotificationType `db:"type" json:"type"`
	Link      string           `db:"link" json:"link"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter narrows a user's notification listing.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}

// OutboxStatus tracks delivery of a notification intent.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxDelivered OutboxStatus = "delivered"
	OutboxFailed    OutboxStatus = "failed"
)

// NotificationIntent is what a workflow wants delivered, before persistence.
type NotificationIntent struct {
	UserID string
	Title  string
	Body   string
	Type   NotificationType
	Link   string
}

// OutboxEntry is a persisted intent awaiting delivery.
type OutboxEntry struct {
	ID             string           `db:"id" json:"id"`
	UserID         string           `db:"user_id" json:"user_id"`
	Title          string           `db:"title" json:"title"`
	Body           string           `db:"body" json:"body"`
	Type           NotificationType `db:"type" json:"type"`
	Link           string           `db:"link" json:"link"`
	Status         OutboxStatus     `db:"status" json:"status"`
	Attempts       int              `db:"attempts" json:"attempts"`
	LastError      *string          `db:"last_error" json:"last_error,omitempty"`
	NotificationID *string          `db:"notification_id" json:"notification_id,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	DeliveredAt    *time.Time       `db:"delivered_at" json:"delivered_at,omitempty"`
}

// Notification builds the row delivered for this entry.
func (e OutboxEntry) Notification() Notification {
	return Notification{
		UserID: e.UserID,
		Title:  e.Title,
		Body:   e.Body,
		Type:   e.Type,
		Link:   e.Link,
	}
}

// DrainResult summarises one outbox drain pass.
type DrainResult struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

package dto

import "github.com/noah-isme/portal-estudiante-api/internal/models"

// NotificationQuery captures GET /notifications filters.
type NotificationQuery struct {
	Unread   bool `form:"unread"`
	Page     int  `form:"page"`
	PageSize int  `form:"page_size"`
}

// UnreadCountResponse wraps the unread counter.
type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

// OutboxStatusResponse summarises the outbox after a replay.
type OutboxStatusResponse struct {
	Result models.DrainResult          `json:"result"`
	Counts map[models.OutboxStatus]int `json:"counts,omitempty"`
}

package models

import "time"

// Payment is a recorded payment event.
type Payment struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	PaymentDate     time.Time `db:"payment_date" json:"payment_date"`
	PaymentMethod   string    `db:"payment_method" json:"payment_method"`
	Amount          float64   `db:"amount" json:"amount"`
	GiftReceived    bool      `db:"gift_received" json:"gift_received"`
	DocumentsStatus string    `db:"documents_status" json:"documents_status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Installment is one scheduled payment obligation.
type Installment struct {
	ID                string        `db:"id" json:"id"`
	UserID            string        `db:"user_id" json:"user_id"`
	InstallmentNumber int           `db:"installment_number" json:"installment_number"`
	Amount            float64       `db:"amount" json:"amount"`
	Support           *string       `db:"support" json:"support,omitempty"`
	SupportStorage    *string       `db:"support_storage" json:"support_storage,omitempty"`
	SupportMimeType   *string       `db:"support_mime_type" json:"support_mime_type,omitempty"`
	Observations      *string       `db:"observations" json:"observations,omitempty"`
	Status            *ReviewStatus `db:"status" json:"status,omitempty"`
	RejectionReason   *string       `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ReviewedBy        *string       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	DueDate           *time.Time    `db:"due_date" json:"due_date,omitempty"`
	SupportUploadedAt *time.Time    `db:"support_uploaded_at" json:"support_uploaded_at,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// CurrentStatus reads a NULL status as pending. A support uploaded after the last
// review reopens it, so the stored decision applies only to the support it judged.
func (i *Installment) CurrentStatus() ReviewStatus {
	if i.Status == nil || *i.Status == "" || i.SupportReplaced() {
		return StatusPending
	}
	return *i.Status
}

// SupportReplaced reports whether the support changed after the last review.
func (i *Installment) SupportReplaced() bool {
	return i.SupportUploadedAt != nil && i.ReviewedAt != nil && i.SupportUploadedAt.After(*i.ReviewedAt)
}

// PaymentFilter narrows payment and installment listings.
type PaymentFilter struct {
	UserID   string
	Status   ReviewStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

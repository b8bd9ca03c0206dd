package models

import "time"

// DocumentType enumerates the files a student must provide.
type DocumentType string

const (
	DocCedula           DocumentType = "cedula"
	DocActaBachiller    DocumentType = "acta_bachiller"
	DocDiplomaBachiller DocumentType = "diploma_bachiller"
	DocEPS              DocumentType = "eps"
	DocICFES            DocumentType = "icfes"
	DocActaTitulo       DocumentType = "acta_titulo"
	DocDiplomaTitulo    DocumentType = "diploma_titulo"
	DocSabanaNotas      DocumentType = "sabana_notas"
	DocFormulario       DocumentType = "formulario"
)

// DocumentTypeInfo labels a document type for checklists.
type DocumentTypeInfo struct {
	Type     DocumentType `json:"type"`
	Label    string       `json:"label"`
	Required bool         `json:"required"`
}

var documentTypes = []DocumentTypeInfo{
	{DocCedula, "Cédula", true},
	{DocActaBachiller, "Acta de bachiller", true},
	{DocDiplomaBachiller, "Diploma de bachiller", true},
	{DocEPS, "Certificado EPS", true},
	{DocICFES, "Resultados ICFES", true},
	{DocActaTitulo, "Acta de título", false},
	{DocDiplomaTitulo, "Diploma de título", false},
	{DocSabanaNotas, "Sábana de notas", false},
	{DocFormulario, "Formulario de inscripción", true},
}

// DocumentTypes returns the recognised types in checklist order.
func DocumentTypes() []DocumentTypeInfo {
	out := make([]DocumentTypeInfo, len(documentTypes))
	copy(out, documentTypes)
	return out
}

// Valid reports whether t is a recognised document type.
func (t DocumentType) Valid() bool {
	for _, info := range documentTypes {
		if info.Type == t {
			return true
		}
	}
	return false
}

// Label returns the display name of the type.
func (t DocumentType) Label() string {
	for _, info := range documentTypes {
		if info.Type == t {
			return info.Label
		}
	}
	return string(t)
}

// ReviewStatus is shared by documents and installment supports.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pendiente"
	StatusInReview ReviewStatus = "en_revision"
	StatusApproved ReviewStatus = "aprobado"
	StatusRejected ReviewStatus = "rechazado"
)

// IsDecision reports whether s is a final reviewer decision.
func (s ReviewStatus) IsDecision() bool {
	return s == StatusApproved || s == StatusRejected
}

// Document is one uploaded file plus its review metadata.
type Document struct {
	ID              string       `db:"id" json:"id"`
	UserID          string       `db:"user_id" json:"user_id"`
	Type            DocumentType `db:"type" json:"type"`
	Name            string       `db:"name" json:"name"`
	Storage         string       `db:"storage" json:"storage"`
	Path            *string      `db:"path" json:"-"`
	DriveFileID     *string      `db:"drive_file_id" json:"drive_file_id,omitempty"`
	WebViewLink     *string      `db:"web_view_link" json:"web_view_link,omitempty"`
	MimeType        string       `db:"mime_type" json:"mime_type"`
	SizeBytes       int64        `db:"size_bytes" json:"size_bytes"`
	Status          ReviewStatus `db:"status" json:"status"`
	RejectionReason *string      `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ReviewedBy      *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	UploadedAt      time.Time    `db:"uploaded_at" json:"uploaded_at"`
}

// ObjectID returns the storage key for the binary, preferring the Drive id.
func (d *Document) ObjectID() string {
	if d.DriveFileID != nil && *d.DriveFileID != "" {
		return *d.DriveFileID
	}
	if d.Path != nil {
		return *d.Path
	}
	return ""
}

// DocumentFilter narrows listing queries.
type DocumentFilter struct {
	UserID   string
	Type     DocumentType
	Status   ReviewStatus
	Storage  string
	Page     int
	PageSize int
}

// ChecklistItem reports the latest document state for one required type.
type ChecklistItem struct {
	DocumentTypeInfo
	Status     *ReviewStatus `json:"status,omitempty"`
	DocumentID *string       `json:"document_id,omitempty"`
}

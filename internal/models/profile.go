package models

import "time"

// EnrollmentStage is the coarse progression label stored on a profile.
type EnrollmentStage string

const (
	StageSubscribed        EnrollmentStage = "suscrito"
	StageDocumentsComplete EnrollmentStage = "documentos_completos"
	StageRegistrationValid EnrollmentStage = "registro_validado"
	StageUniversityProcess EnrollmentStage = "proceso_universitario"
	StageEnrolled          EnrollmentStage = "matriculado"
	StageClassesStarted    EnrollmentStage = "inicio_clases"
	StageActiveStudent     EnrollmentStage = "estudiante_activo"
	StagePaymentsUpToDate  EnrollmentStage = "pagos_al_dia"
	StageProcessFinished   EnrollmentStage = "proceso_finalizado"
)

// StageInfo pairs a stage with its display label and conventional order.
type StageInfo struct {
	Stage EnrollmentStage `json:"stage"`
	Label string          `json:"label"`
	Order int             `json:"order"`
}

var stageLabels = []StageInfo{
	{StageSubscribed, "Suscrito", 1},
	{StageDocumentsComplete, "Documentos completos", 2},
	{StageRegistrationValid, "Registro validado", 3},
	{StageUniversityProcess, "Proceso universitario", 4},
	{StageEnrolled, "Matriculado", 5},
	{StageClassesStarted, "Inicio de clases", 6},
	{StageActiveStudent, "Estudiante activo", 7},
	{StagePaymentsUpToDate, "Pagos al día", 8},
	{StageProcessFinished, "Proceso finalizado", 9},
}

// Stages returns the ordered stage enumeration.
func Stages() []StageInfo {
	out := make([]StageInfo, len(stageLabels))
	copy(out, stageLabels)
	return out
}

// Valid reports whether s belongs to the enumeration.
func (s EnrollmentStage) Valid() bool {
	_, ok := s.info()
	return ok
}

// Label returns the human readable stage name, or the raw value when unknown.
func (s EnrollmentStage) Label() string {
	if info, ok := s.info(); ok {
		return info.Label
	}
	return string(s)
}

func (s EnrollmentStage) info() (StageInfo, bool) {
	for _, info := range stageLabels {
		if info.Stage == s {
			return info, true
		}
	}
	return StageInfo{}, false
}

// Profile holds the student's personal data and enrollment stage.
type Profile struct {
	UserID          string          `db:"user_id" json:"user_id"`
	FullName        string          `db:"full_name" json:"full_name"`
	DocumentType    string          `db:"document_type" json:"document_type"`
	DocumentNumber  string          `db:"document_number" json:"document_number"`
	Email           *string         `db:"email" json:"email,omitempty"`
	Phone           *string         `db:"phone" json:"phone,omitempty"`
	Address         *string         `db:"address" json:"address,omitempty"`
	City            *string         `db:"city" json:"city,omitempty"`
	Program         *string         `db:"program" json:"program,omitempty"`
	EnrollmentStage EnrollmentStage `db:"enrollment_stage" json:"enrollment_stage"`
	StageUpdatedAt  *time.Time      `db:"stage_updated_at" json:"stage_updated_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ProfileFilter narrows reviewer profile listings.
type ProfileFilter struct {
	Stage    *EnrollmentStage
	Search   string
	Page     int
	PageSize int
}

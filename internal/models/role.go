package models

import (
	"fmt"

	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
)

// UserRole is the role tag stored on every user.
type UserRole string

const (
	RoleStudent     UserRole = "estudiante"
	RoleAdmin       UserRole = "admin"
	RoleFinance     UserRole = "cartera"
	RoleInstitution UserRole = "institucion"
	RoleAlly        UserRole = "aliado"
	RoleSuperAdmin  UserRole = "superuser"
)

// Roles lists every role in display order.
var Roles = []UserRole{RoleStudent, RoleAdmin, RoleFinance, RoleInstitution, RoleAlly, RoleSuperAdmin}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	for _, role := range Roles {
		if role == r {
			return true
		}
	}
	return false
}

// Capability names an action guarded by role.
type Capability string

const (
	CapUploadOwnDocuments Capability = "documents:upload_own"
	CapViewAllDocuments   Capability = "documents:view_all"
	CapReviewDocuments    Capability = "documents:review"
	CapDeleteAnyDocument  Capability = "documents:delete_any"
	CapManagePayments     Capability = "payments:manage"
	CapReviewPayments     Capability = "payments:review"
	CapSubmitRequests     Capability = "requests:submit"
	CapRespondRequests    Capability = "requests:respond"
	CapAdvanceStage       Capability = "profiles:advance_stage"
	CapViewProfiles       Capability = "profiles:view"
	CapExportReports      Capability = "reports:export"
	CapMaintenance        Capability = "maintenance"
)

// Can reports whether the role holds the capability.
func (r UserRole) Can(c Capability) bool {
	switch r {
	case RoleStudent:
		return c == CapUploadOwnDocuments || c == CapSubmitRequests
	case RoleAdmin, RoleSuperAdmin:
		return c != CapUploadOwnDocuments && c != CapSubmitRequests
	case RoleFinance:
		switch c {
		case CapViewAllDocuments, CapViewProfiles, CapManagePayments, CapReviewPayments, CapRespondRequests, CapExportReports:
			return true
		}
	case RoleInstitution, RoleAlly:
		switch c {
		case CapViewAllDocuments, CapViewProfiles, CapReviewDocuments, CapDeleteAnyDocument, CapAdvanceStage:
			return true
		}
	}
	return false
}

// Authorize is the single role check used by middleware and services.
func Authorize(role UserRole, c Capability) error {
	if role.Can(c) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %q cannot %s", role, c))
}

// RolesWith returns every role holding the capability.
func RolesWith(c Capability) []UserRole {
	out := make([]UserRole, 0, len(Roles))
	for _, role := range Roles {
		if role.Can(c) {
			out = append(out, role)
		}
	}
	return out
}

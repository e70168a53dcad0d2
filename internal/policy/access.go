// Package policy maps roles to the department filter applied at query time.
// It is the only place that decides what a role may read.
package policy

import "rolerag/internal/domain"

// FilterKind selects how a FilterSpec restricts the corpus.
type FilterKind int

const (
	// Unfiltered grants full corpus visibility.
	Unfiltered FilterKind = iota
	// Department restricts results to one department tag.
	Department
	// General restricts results to department-agnostic material.
	General
)

func (k FilterKind) String() string {
	switch k {
	case Unfiltered:
		return "unfiltered"
	case Department:
		return "department"
	case General:
		return "general"
	}
	return "unknown"
}

// FilterSpec is the result of AccessPolicy.
type FilterSpec struct {
	Kind       FilterKind
	Department string
}

// Tag returns the department tag the filter restricts to, or "" when
// unfiltered.
func (f FilterSpec) Tag() string {
	switch f.Kind {
	case Department:
		return f.Department
	case General:
		return domain.GeneralDepartment
	}
	return ""
}

// Scope describes the access scope in user-facing terms.
func (f FilterSpec) Scope() string {
	switch f.Kind {
	case Unfiltered:
		return "Unfiltered access: full visibility (C-Level Executives)."
	case General:
		return "Filtered access: only general category documents (Employee)."
	}
	return "Filtered by department: " + f.Department + "."
}

// AccessPolicy returns the filter for role. Roles outside the enumeration
// get the General filter.
func AccessPolicy(role domain.Role) FilterSpec {
	switch role {
	case domain.RoleExecutive:
		return FilterSpec{Kind: Unfiltered}
	case domain.RoleEngineering, domain.RoleMarketing, domain.RoleFinance, domain.RoleHR:
		return FilterSpec{Kind: Department, Department: role.Department()}
	case domain.RoleEmployee:
		return FilterSpec{Kind: General}
	default:
		return FilterSpec{Kind: General}
	}
}

// FallbackDepartments is the broadened filter set for the privileged
// role's second search: every known department plus general.
func FallbackDepartments() []string {
	return append(domain.KnownDepartments(), domain.GeneralDepartment)
}

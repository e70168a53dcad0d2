package domain

import "strings"

// Role is the access scope of an authenticated principal.
type Role string

const (
	RoleEngineering Role = "engineering"
	RoleMarketing   Role = "marketing"
	RoleFinance     Role = "finance"
	RoleHR          Role = "hr"
	RoleEmployee    Role = "employee"
	RoleExecutive   Role = "executive"
)

// Roles lists every role in a stable order.
var Roles = []Role{
	RoleEngineering,
	RoleMarketing,
	RoleFinance,
	RoleHR,
	RoleEmployee,
	RoleExecutive,
}

// roleAliases are exact spellings accepted in addition to the role names.
var roleAliases = map[string]Role{
	"c-levelexecutives": RoleExecutive,
	"c-level":           RoleExecutive,
	"executives":        RoleExecutive,
	"general":           RoleEmployee,
}

// ParseRole normalizes s and matches it exactly. Unknown strings resolve to
// RoleEmployee with ok set to false.
func ParseRole(s string) (Role, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch r := Role(norm); r {
	case RoleEngineering, RoleMarketing, RoleFinance, RoleHR, RoleEmployee, RoleExecutive:
		return r, true
	}
	if r, ok := roleAliases[norm]; ok {
		return r, true
	}
	return RoleEmployee, false
}

// Department returns the department tag a department-scoped role reads, or
// "" for roles that are not scoped to a department.
func (r Role) Department() string {
	switch r {
	case RoleEngineering, RoleMarketing, RoleFinance, RoleHR:
		return string(r)
	}
	return ""
}

// DisplayName is the label used in access disclosures.
func (r Role) DisplayName() string {
	switch r {
	case RoleEngineering:
		return "Engineering"
	case RoleMarketing:
		return "Marketing"
	case RoleFinance:
		return "Finance"
	case RoleHR:
		return "HR"
	case RoleEmployee:
		return "Employee"
	case RoleExecutive:
		return "C-Level Executives"
	}
	return string(r)
}

// KnownDepartments returns the department tags owned by department-scoped
// roles, in Roles order.
func KnownDepartments() []string {
	var out []string
	for _, r := range Roles {
		if d := r.Department(); d != "" {
			out = append(out, d)
		}
	}
	return out
}

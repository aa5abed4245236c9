package user

import (
	"sort"
	"strings"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Bursar: collects payments, manages enrollments
	RoleBursar = "bursar:"

	// Teacher
	RoleTeacher = "teacher:"
)

var (
	AdminRoles  = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	BursarRoles = []string{RoleBursar}
	AllRoles    = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner:     30,
		RoleAdminPrincipal: 29,
		RoleAdmin:          21,

		// Bursars: 20 - 11
		RoleBursar: 11,

		// Teachers: 10 - 1
		RoleTeacher: 1,
	}

	Roles = []Role{
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Bursar", Value: RoleBursar},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Principal", Value: RoleAdminPrincipal},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}

	// System is the principal used by operator tooling (admin CLI).
	System = User{ID: "system", Name: "System", Username: "system", Roles: []string{RoleAdminOwner}}
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, BursarRoles...)
	all = append(all, RoleTeacher)
	sort.Strings(all)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

func IsValidRole(role string) bool {
	i := sort.SearchStrings(AllRoles, role)
	return i < len(AllRoles) && AllRoles[i] == role
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the authenticated principal performing an operation.
// Accounts live in the identity provider; only what travels in the auth token is kept here.
type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func (u User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u User) IsBursar() bool {
	return u.RoleStartsWith(RoleBursar)
}

// CanCollect reports whether u may record payments and manage enrollments.
func (u User) CanCollect() bool {
	return u.IsAdmin() || u.IsBursar()
}

// DisplayName is what gets recorded in `createdBy` / `appliedBy` fields.
func (u User) DisplayName() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.Name != "":
		return u.Name
	default:
		return u.ID
	}
}

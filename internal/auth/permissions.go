package auth

import "sort"

// Permission is one of a closed set of capabilities a user may hold. The
// values mirror the permission codenames stored with user records.
type Permission string

const (
	PermOrganizationAdmin Permission = "organization.is_organization_admin"
	PermBranchAdmin       Permission = "organization.is_branch_admin"
)

// ParsePermission maps a stored codename to a known Permission.
func ParsePermission(s string) (Permission, bool) {
	switch Permission(s) {
	case PermOrganizationAdmin:
		return PermOrganizationAdmin, true
	case PermBranchAdmin:
		return PermBranchAdmin, true
	default:
		return "", false
	}
}

// PermissionSet is the resolved capability set of a principal.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// PermissionSetFromStrings builds a set from stored codenames, dropping
// anything outside the known catalog.
func PermissionSetFromStrings(codes []string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, c := range codes {
		if p, ok := ParsePermission(c); ok {
			set[p] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set contains the permission.
func (ps PermissionSet) Has(p Permission) bool {
	_, ok := ps[p]
	return ok
}

// HasAll reports whether every given permission is present.
func (ps PermissionSet) HasAll(perms ...Permission) bool {
	for _, p := range perms {
		if !ps.Has(p) {
			return false
		}
	}
	return true
}

// Strings returns the sorted codenames, suitable for a claims snapshot.
func (ps PermissionSet) Strings() []string {
	out := make([]string, 0, len(ps))
	for p := range ps {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

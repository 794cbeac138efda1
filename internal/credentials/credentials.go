// Package credentials holds the access-controlled account definitions the
// orchestration core authorizes and dispatches against. Definitions are
// loaded from external configuration and are read-only to the core.
package credentials

import (
	"github.com/skylinehq/skyline/internal/dispatch"
)

// Authorization is a permission class on an account.
type Authorization string

const (
	AuthorizationRead    Authorization = "READ"
	AuthorizationWrite   Authorization = "WRITE"
	AuthorizationExecute Authorization = "EXECUTE"
)

// Permissions maps an authorization to the set of principals granted it.
//
// A missing key means the authorization is unrestricted; a present key with
// an empty set means nobody holds it. Callers must go through Restricted
// and Allows, which preserve that distinction.
type Permissions map[Authorization][]string

// Restricted reports whether the authorization has any restriction at all.
func (p Permissions) Restricted(a Authorization) bool {
	_, present := p[a]
	return present
}

// Allows reports whether any of the caller's principals hold the
// authorization. An unrestricted authorization allows everyone; a present
// but empty set allows no one.
func (p Permissions) Allows(a Authorization, principals []string) bool {
	granted, present := p[a]
	if !present {
		return true
	}
	for _, g := range granted {
		for _, principal := range principals {
			if g == principal {
				return true
			}
		}
	}
	return false
}

// Credentials is one account definition: its provider namespace, its
// permission map, and the resource-property registry that resolves resource
// kinds to this account's provider handlers.
type Credentials struct {
	Name        string
	Provider    string
	Permissions Permissions
	Resources   *dispatch.HandlerRegistry
}

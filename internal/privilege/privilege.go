// Package privilege decides which trade operations a user's profile allows.
package privilege

import (
	"context"
	"strings"

	"tradebook-core/pkg/db"
)

// Operation is a guarded trade action.
type Operation string

const (
	Create    Operation = "CREATE"
	Amend     Operation = "AMEND"
	Terminate Operation = "TERMINATE"
	Cancel    Operation = "CANCEL"
	View      Operation = "VIEW"
)

// Profiles known to the booking system.
const (
	ProfileTraderSales = "TRADER_SALES"
	ProfileMO          = "MO"
	ProfileSupport     = "SUPPORT"
	ProfileSuperuser   = "SUPERUSER"
)

var allOperations = []Operation{Create, Amend, Terminate, Cancel, View}

// defaultGrants maps profile to allowed operations. Profiles not listed get nothing.
var defaultGrants = map[string][]Operation{
	ProfileTraderSales: {Create, Amend, Terminate, Cancel, View},
	ProfileMO:          {Amend, View},
	ProfileSupport:     {View},
	ProfileSuperuser:   allOperations,
}

// ParseOperation maps a name (any case) to an Operation.
func ParseOperation(name string) (Operation, bool) {
	op := Operation(strings.ToUpper(strings.TrimSpace(name)))
	for _, known := range allOperations {
		if op == known {
			return op, true
		}
	}
	return "", false
}

// UserSource finds users by login id; nil, nil means no such user.
type UserSource interface {
	UserByLogin(ctx context.Context, loginID string) (*db.User, error)
}

// Engine answers authorization questions from a grant table.
type Engine struct {
	users  UserSource
	grants map[string]map[Operation]bool
}

// NewEngine builds an engine with the standard grant table.
func NewEngine(users UserSource) *Engine {
	e := &Engine{users: users, grants: make(map[string]map[Operation]bool, len(defaultGrants))}
	for profile, ops := range defaultGrants {
		set := make(map[Operation]bool, len(ops))
		for _, op := range ops {
			set[op] = true
		}
		e.grants[profile] = set
	}
	return e
}

// Allows reports whether a profile grants op, ignoring case.
func (e *Engine) Allows(profile string, op Operation) bool {
	return e.grants[strings.ToUpper(strings.TrimSpace(profile))][op]
}

// Operations lists what a profile may do, in a stable order.
func (e *Engine) Operations(profile string) []Operation {
	var out []Operation
	for _, op := range allOperations {
		if e.Allows(profile, op) {
			out = append(out, op)
		}
	}
	return out
}

// Authorize reports whether loginID may perform operation. Unknown users,
// inactive users, missing profiles and unknown operations are all denied.
// Only store failures are returned as errors.
func (e *Engine) Authorize(ctx context.Context, loginID, operation string) (bool, error) {
	if strings.TrimSpace(loginID) == "" || strings.TrimSpace(operation) == "" {
		return false, nil
	}
	op, ok := ParseOperation(operation)
	if !ok {
		return false, nil
	}
	u, err := e.activeUser(ctx, loginID)
	if err != nil || u == nil {
		return false, err
	}
	return e.Allows(u.Profile, op), nil
}

// HasAnyRole reports whether the active user's profile is one of roles.
func (e *Engine) HasAnyRole(ctx context.Context, loginID string, roles ...string) (bool, error) {
	u, err := e.activeUser(ctx, loginID)
	if err != nil || u == nil {
		return false, err
	}
	profile := strings.ToUpper(strings.TrimSpace(u.Profile))
	for _, r := range roles {
		if profile == strings.ToUpper(strings.TrimSpace(r)) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) activeUser(ctx context.Context, loginID string) (*db.User, error) {
	if strings.TrimSpace(loginID) == "" {
		return nil, nil
	}
	u, err := e.users.UserByLogin(ctx, loginID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Active || strings.TrimSpace(u.Profile) == "" {
		return nil, nil
	}
	return u, nil
}

// Package authz answers per-account capability questions for a user.
package authz

import (
	"fmt"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

// IsAdmin reports whether user is an administrator.
func IsAdmin(user *types.User) (bool, string) {
	if user != nil && user.IsAdmin {
		return true, ""
	}
	return false, "user is not authorized"
}

// CanReadAccount reports whether user may see every account in accountIDs.
func CanReadAccount(user *types.User, accountIDs ...string) (bool, string) {
	if ok, _ := IsAdmin(user); ok {
		return true, ""
	}
	if user == nil {
		return false, "No user found"
	}
	for _, id := range accountIDs {
		if _, ok := user.Accounts[id]; !ok {
			return false, "user is not authorized for account " + id
		}
	}
	return true, ""
}

// CanRequestExclusion reports whether user may request exclusions on accountID.
func CanRequestExclusion(user *types.User, accountID string) (bool, string) {
	if ok, _ := IsAdmin(user); ok {
		return true, ""
	}
	return CanUserPerform(user, accountID, types.PermissionRequestExclusion)
}

// CanRemediate reports whether user may trigger remediation on accountID.
// Administrators bypass the grant check.
func CanRemediate(user *types.User, accountID string) (bool, string) {
	if ok, _ := IsAdmin(user); ok {
		return true, ""
	}
	return CanUserPerform(user, accountID, types.PermissionTriggerRemediation)
}

// CanUserPerform checks an explicit grant of action on accountID.
func CanUserPerform(user *types.User, accountID, action string) (bool, string) {
	if user != nil {
		if grant, ok := user.Accounts[accountID]; ok && grant.Permissions[action] {
			return true, fmt.Sprintf("User has explicit permission for account %s.", accountID)
		}
	}
	return false, fmt.Sprintf("User does not have rights for account %s.", accountID)
}

// RequireAdmin returns a forbidden error unless user is an administrator.
func RequireAdmin(user *types.User) error {
	return require(IsAdmin(user))
}

// RequireCanReadAccount returns a forbidden error unless user may read all accountIDs.
func RequireCanReadAccount(user *types.User, accountIDs ...string) error {
	return require(CanReadAccount(user, accountIDs...))
}

// RequireCanRequestExclusion returns a forbidden error unless user may request exclusions.
func RequireCanRequestExclusion(user *types.User, accountID string) error {
	return require(CanRequestExclusion(user, accountID))
}

// RequireCanRemediate returns a forbidden error unless user may remediate.
func RequireCanRemediate(user *types.User, accountID string) error {
	ok, reason := CanRemediate(user, accountID)
	if ok {
		return nil
	}
	return errors.Forbiddenf("authorization failed: %s", reason)
}

func require(ok bool, reason string) error {
	if ok {
		return nil
	}
	return errors.Forbiddenf("%s", reason)
}

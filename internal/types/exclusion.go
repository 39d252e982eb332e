package types

import (
	"fmt"
	"strings"
)

// Stored exclusion statuses. A record without a status is in the derived
// start state.
const (
	StatusInitial  = "initial"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusArchived = "archived"
)

// Wildcard matches any account or any resource in an exclusion.
const Wildcard = "*"

// Exclusion is a request to mark a (account, requirement, resource) triple as
// accepted. AccountID and ResourceID may carry wildcards.
type Exclusion struct {
	AccountID            string            `json:"accountId,omitempty"`
	RequirementID        string            `json:"requirementId,omitempty"`
	ResourceID           string            `json:"resourceId,omitempty"`
	Type                 string            `json:"type,omitempty"`
	Status               string            `json:"status,omitempty"`
	ExpirationDate       string            `json:"expirationDate,omitempty"`
	FormFields           map[string]string `json:"formFields,omitempty"`
	AdminComments        string            `json:"adminComments,omitempty"`
	HidesResources       bool              `json:"hidesResources,omitempty"`
	UpdateRequested      *ChangeRequest    `json:"updateRequested,omitempty"`
	LastModifiedByAdmin  string            `json:"lastModifiedByAdmin,omitempty"`
	LastModifiedByUser   string            `json:"lastModifiedByUser,omitempty"`
	LastStatusChangeDate string            `json:"lastStatusChangeDate,omitempty"`
}

// ChangeRequest holds user-proposed edits to an approved exclusion.
type ChangeRequest struct {
	ExpirationDate string            `json:"expirationDate,omitempty"`
	FormFields     map[string]string `json:"formFields,omitempty"`
}

// IsEmpty reports whether no change is pending.
func (c *ChangeRequest) IsEmpty() bool {
	return c == nil || (c.ExpirationDate == "" && len(c.FormFields) == 0)
}

// ExclusionKey is the storage key of an exclusion.
type ExclusionKey struct {
	AccountID     string `json:"accountId"`
	RequirementID string `json:"requirementId"`
	ResourceID    string `json:"resourceId"`
}

// SortKey is the secondary key under an account: requirementId#resourceId.
func (k ExclusionKey) SortKey() string {
	return k.RequirementID + "#" + k.ResourceID
}

// ID renders the opaque exclusion id accountId#requirementId#resourceId.
func (k ExclusionKey) ID() string {
	return k.AccountID + "#" + k.RequirementID + "#" + k.ResourceID
}

// Key returns the identity triple of e.
func (e *Exclusion) Key() ExclusionKey {
	return ExclusionKey{AccountID: e.AccountID, RequirementID: e.RequirementID, ResourceID: e.ResourceID}
}

// ID returns the exclusion id.
func (e *Exclusion) ID() string {
	return e.Key().ID()
}

// IsWildcard reports whether the exclusion covers more than one account or resource.
func (e *Exclusion) IsWildcard() bool {
	return e != nil && (strings.Contains(e.AccountID, Wildcard) || strings.Contains(e.ResourceID, Wildcard))
}

// Clone returns a deep copy.
func (e *Exclusion) Clone() *Exclusion {
	if e == nil {
		return nil
	}
	c := *e
	c.FormFields = cloneStrings(e.FormFields)
	if e.UpdateRequested != nil {
		u := *e.UpdateRequested
		u.FormFields = cloneStrings(e.UpdateRequested.FormFields)
		c.UpdateRequested = &u
	}
	return &c
}

// ParseExclusionID splits an exclusion id into its key.
func ParseExclusionID(id string) (ExclusionKey, error) {
	parts := strings.Split(id, "#")
	if len(parts) != 3 {
		return ExclusionKey{}, fmt.Errorf("malformed exclusion id %q", id)
	}
	return ExclusionKey{AccountID: parts[0], RequirementID: parts[1], ResourceID: parts[2]}, nil
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

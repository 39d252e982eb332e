package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Remediation status values recorded on a finding.
const (
	RemediationInProgress = "In Progress"
	RemediationSuccess    = "Success"
	RemediationError      = "Error"
)

// Finding is a non-compliant resource observed in a scan (NCR).
type Finding struct {
	ScanID            string          `json:"scanId"`
	AccountID         string          `json:"accountId"`
	AccountName       string          `json:"accountName,omitempty"`
	ResourceID        string          `json:"resourceId"`
	RequirementID     string          `json:"requirementId"`
	ResourceName      string          `json:"resourceName,omitempty"`
	ResourceType      string          `json:"resourceType,omitempty"`
	Region            string          `json:"region,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	Exclusion         *Exclusion      `json:"exclusion,omitempty"`
	ExclusionApplied  bool            `json:"exclusionApplied"`
	IsHidden          bool            `json:"isHidden"`
	RemediationStatus *string         `json:"remediated,omitempty"`
	AllowedActions    *AllowedActions `json:"allowedActions,omitempty"`
}

// FindingKey identifies a finding.
type FindingKey struct {
	ScanID        string
	AccountID     string
	ResourceID    string
	RequirementID string
}

// SortKey is the finding's key within its scan: accountId#resourceId#requirementId.
func (k FindingKey) SortKey() string {
	return k.AccountID + "#" + k.ResourceID + "#" + k.RequirementID
}

// NCRID renders scanId#accountId#resourceId#requirementId.
func (k FindingKey) NCRID() string {
	return k.ScanID + "#" + k.SortKey()
}

// Key returns the finding's key.
func (f *Finding) Key() FindingKey {
	return FindingKey{ScanID: f.ScanID, AccountID: f.AccountID, ResourceID: f.ResourceID, RequirementID: f.RequirementID}
}

// NCRID returns the finding id.
func (f *Finding) NCRID() string {
	return f.Key().NCRID()
}

// ParseNCRID splits an ncr id. Scan ids carry exactly one '#'.
func ParseNCRID(id string) (FindingKey, error) {
	parts := strings.Split(id, "#")
	if len(parts) != 5 {
		return FindingKey{}, fmt.Errorf("malformed ncr id %q", id)
	}
	for _, p := range parts {
		if p == "" {
			return FindingKey{}, fmt.Errorf("malformed ncr id %q", id)
		}
	}
	return FindingKey{
		ScanID:        parts[0] + "#" + parts[1],
		AccountID:     parts[2],
		ResourceID:    parts[3],
		RequirementID: parts[4],
	}, nil
}

// AllowedActions is the per-finding capability set shown to a user.
type AllowedActions struct {
	Remediate              bool `json:"remediate"`
	RequestExclusion       bool `json:"requestExclusion"`
	RequestExclusionChange bool `json:"requestExclusionChange"`
}

// Scan process states.
const (
	ScanInProgress = "IN_PROGRESS"
	ScanCompleted  = "COMPLETED"
)

// Scan is one compliance scan run.
type Scan struct {
	ScanID              string     `json:"scanId"`
	ProcessState        string     `json:"processState"`
	CreatedAt           time.Time  `json:"createdAt"`
	ExclusionsAppliedAt *time.Time `json:"exclusionsAppliedAt,omitempty"`
}

// NewScanID returns <RFC3339 timestamp>#<random suffix>.
func NewScanID(now time.Time) string {
	return now.UTC().Format(time.RFC3339) + "#" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

package types

// FormField describes one free-text field on an exclusion form.
type FormField struct {
	Label       string `yaml:"label" json:"label"`
	Placeholder string `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
}

// StateSettings carries per-state behavior of an exclusion type.
type StateSettings struct {
	Effective bool `yaml:"effective" json:"effective"`
}

// ExclusionType is the configuration shared by all exclusions of one kind.
type ExclusionType struct {
	DisplayName       string                   `yaml:"displayname" json:"displayname"`
	MaxDurationInDays int                      `yaml:"maxDurationInDays" json:"maxDurationInDays"`
	FormFields        map[string]FormField     `yaml:"formFields" json:"formFields"`
	States            map[string]StateSettings `yaml:"states,omitempty" json:"states,omitempty"`
}

// EffectiveIn reports whether exclusions in the given stored status suppress findings.
func (t ExclusionType) EffectiveIn(status string) bool {
	return t.States[status].Effective
}

// RemediationRef links a requirement to a remediation definition.
type RemediationRef struct {
	RemediationID              string         `yaml:"remediationId" json:"remediationId"`
	RequirementBasedParameters map[string]any `yaml:"requirementBasedParameters,omitempty" json:"requirementBasedParameters,omitempty"`
}

// Requirement is a compliance rule.
type Requirement struct {
	RequirementID string          `yaml:"requirementId" json:"requirementId"`
	Description   string          `yaml:"description" json:"description"`
	Source        string          `yaml:"source,omitempty" json:"source,omitempty"`
	Severity      string          `yaml:"severity,omitempty" json:"severity,omitempty"`
	ExclusionType string          `yaml:"exclusionType" json:"exclusionType"`
	Remediation   *RemediationRef `yaml:"remediation,omitempty" json:"remediation,omitempty"`
}

// ParameterSpec documents a user-supplied remediation parameter.
type ParameterSpec struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
}

// RemediationDefinition names the worker that performs a remediation and
// the parameters a caller must supply.
type RemediationDefinition struct {
	Worker      string                   `yaml:"worker" json:"worker"`
	Description string                   `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters  map[string]ParameterSpec `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Account is a scanned cloud account.
type Account struct {
	AccountID       string `yaml:"accountId" json:"accountId"`
	Name            string `yaml:"name,omitempty" json:"name,omitempty"`
	ReadonlyRoleARN string `yaml:"readonlyRoleArn" json:"readonlyRoleArn"`
}

// Grant names.
const (
	PermissionRequestExclusion   = "requestExclusion"
	PermissionTriggerRemediation = "triggerRemediation"
)

// AccountGrant is a user's permissions on one account.
type AccountGrant struct {
	Permissions map[string]bool `yaml:"permissions" json:"permissions"`
}

// User is an authenticated principal.
type User struct {
	Email    string                  `yaml:"email" json:"email"`
	IsAdmin  bool                    `yaml:"isAdmin" json:"isAdmin"`
	Accounts map[string]AccountGrant `yaml:"accounts,omitempty" json:"accounts,omitempty"`
}

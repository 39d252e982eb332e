package config

import (
	"bytes"
	"os"
	"sort"
	"text/template"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

// SupportedCatalogVersions is the semver constraint a catalog version must satisfy
const SupportedCatalogVersions = "^1"

// CatalogVersion keeps the raw scalar so "1", 1 and "1.2" all decode.
type CatalogVersion string

// UnmarshalYAML implements yaml.Unmarshaler
func (v *CatalogVersion) UnmarshalYAML(node *yaml.Node) error {
	*v = CatalogVersion(node.Value)
	return nil
}

// Catalog is the read-only configuration store: exclusion types,
// requirements, remediation definitions, accounts and users.
type Catalog struct {
	Version        CatalogVersion                         `yaml:"version"`
	Defaults       Defaults                               `yaml:"defaults"`
	ExclusionTypes map[string]types.ExclusionType         `yaml:"exclusionTypes"`
	Requirements   []types.Requirement                    `yaml:"requirements"`
	Remediations   map[string]types.RemediationDefinition `yaml:"remediations"`
	Accounts       []types.Account                        `yaml:"accounts"`
	Users          []types.User                           `yaml:"users"`

	requirements map[string]*types.Requirement
	accounts     map[string]*types.Account
	users        map[string]*types.User
}

// Defaults contains default configuration values
type Defaults struct {
	PollInterval        string        `yaml:"x-poll-interval,omitempty"`
	ReapplyInterval     string        `yaml:"x-reapply-interval,omitempty"`
	WorkerConcurrency   int           `yaml:"x-worker-concurrency,omitempty"`
	WorkerRetryAttempts int           `yaml:"x-worker-retry-attempts,omitempty"`
	WorkerRetryBackoff  string        `yaml:"x-worker-retry-backoff,omitempty"`
	QueueBufferSize     int           `yaml:"x-queue-buffer-size,omitempty"`
	Policy              *PolicyConfig `yaml:"x-policy,omitempty"`
}

// PolicyConfig represents a CEL-based score gate
type PolicyConfig struct {
	Expression     string `yaml:"expression"`
	FailureMessage string `yaml:"failureMessage,omitempty"`
}

// LoadCatalog reads, expands and parses a scorecard.yml catalog file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewTransientf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML. {{ env "NAME" }} references are
// expanded before parsing.
func ParseCatalog(data []byte) (*Catalog, error) {
	expanded, err := expandTemplates(data)
	if err != nil {
		return nil, errors.NewPermanentf("failed to expand catalog templates: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(expanded, &catalog); err != nil {
		return nil, errors.NewPermanentf("failed to parse catalog YAML: %w", err)
	}
	catalog.index()
	return &catalog, nil
}

func expandTemplates(data []byte) ([]byte, error) {
	if !bytes.Contains(data, []byte("{{")) {
		return data, nil
	}
	tmpl, err := template.New("catalog").
		Funcs(template.FuncMap{"env": os.Getenv}).
		Option("missingkey=zero").
		Parse(string(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Catalog) index() {
	c.requirements = make(map[string]*types.Requirement, len(c.Requirements))
	for i := range c.Requirements {
		c.requirements[c.Requirements[i].RequirementID] = &c.Requirements[i]
	}
	c.accounts = make(map[string]*types.Account, len(c.Accounts))
	for i := range c.Accounts {
		c.accounts[c.Accounts[i].AccountID] = &c.Accounts[i]
	}
	c.users = make(map[string]*types.User, len(c.Users))
	for i := range c.Users {
		c.users[c.Users[i].Email] = &c.Users[i]
	}
}

// Validate checks the catalog version and cross references
func (c *Catalog) Validate() error {
	if c.Version == "" {
		return errors.NewPermanentf("catalog version is required")
	}
	version, err := semver.NewVersion(string(c.Version))
	if err != nil {
		return errors.NewPermanentf("invalid catalog version %q: %w", c.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedCatalogVersions)
	if err != nil {
		return errors.NewPermanentf("invalid version constraint: %w", err)
	}
	if !constraint.Check(version) {
		return errors.NewPermanentf("unsupported catalog version %s (supported: %s)", version, SupportedCatalogVersions)
	}

	for name, et := range c.ExclusionTypes {
		if et.MaxDurationInDays <= 0 {
			return errors.NewPermanentf("exclusion type %s: maxDurationInDays must be positive", name)
		}
	}

	if len(c.requirements) != len(c.Requirements) {
		return errors.NewPermanentf("duplicate requirement ids in catalog")
	}
	for _, req := range c.Requirements {
		if req.RequirementID == "" {
			return errors.NewPermanentf("requirement without requirementId")
		}
		if _, ok := c.ExclusionTypes[req.ExclusionType]; !ok {
			return errors.NewPermanentf("requirement %s references unknown exclusion type %q", req.RequirementID, req.ExclusionType)
		}
		if req.Remediation != nil {
			if _, ok := c.Remediations[req.Remediation.RemediationID]; !ok {
				return errors.NewPermanentf("requirement %s references unknown remediation %q", req.RequirementID, req.Remediation.RemediationID)
			}
		}
	}

	for id, def := range c.Remediations {
		if def.Worker == "" {
			return errors.NewPermanentf("remediation %s: worker is required", id)
		}
	}

	if len(c.accounts) != len(c.Accounts) {
		return errors.NewPermanentf("duplicate account ids in catalog")
	}
	for _, acct := range c.Accounts {
		if acct.AccountID == "" || acct.AccountID == types.Wildcard {
			return errors.NewPermanentf("invalid account id %q", acct.AccountID)
		}
	}

	for _, user := range c.Users {
		if user.Email == "" {
			return errors.NewPermanentf("user without email")
		}
	}

	if _, err := c.GetPollInterval(); err != nil {
		return errors.NewPermanentf("invalid x-poll-interval: %w", err)
	}
	if _, err := c.GetReapplyInterval(); err != nil {
		return errors.NewPermanentf("invalid x-reapply-interval: %w", err)
	}

	return nil
}

// Requirement returns the requirement with the given id
func (c *Catalog) Requirement(id string) (*types.Requirement, bool) {
	r, ok := c.requirements[id]
	return r, ok
}

// Remediation returns the remediation definition with the given id
func (c *Catalog) Remediation(id string) (*types.RemediationDefinition, bool) {
	def, ok := c.Remediations[id]
	if !ok {
		return nil, false
	}
	return &def, true
}

// Account returns the account with the given id
func (c *Catalog) Account(id string) (*types.Account, bool) {
	a, ok := c.accounts[id]
	return a, ok
}

// AccountIDs returns all configured account ids, sorted
func (c *Catalog) AccountIDs() []string {
	ids := make([]string, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		ids = append(ids, a.AccountID)
	}
	sort.Strings(ids)
	return ids
}

// User returns the user with the given email
func (c *Catalog) User(email string) (*types.User, bool) {
	u, ok := c.users[email]
	return u, ok
}

// ExclusionType returns the exclusion type configuration by name
func (c *Catalog) ExclusionType(name string) (types.ExclusionType, bool) {
	et, ok := c.ExclusionTypes[name]
	return et, ok
}

// ExclusionTypeConfigs returns every configured exclusion type by name
func (c *Catalog) ExclusionTypeConfigs() map[string]types.ExclusionType {
	return c.ExclusionTypes
}

// ExclusionTypeFor returns the exclusion type of a requirement
func (c *Catalog) ExclusionTypeFor(requirementID string) (string, types.ExclusionType, bool) {
	req, ok := c.Requirement(requirementID)
	if !ok {
		return "", types.ExclusionType{}, false
	}
	et, ok := c.ExclusionTypes[req.ExclusionType]
	return req.ExclusionType, et, ok
}

// RequirementSeverities maps requirement ids to their severity
func (c *Catalog) RequirementSeverities() map[string]string {
	out := make(map[string]string, len(c.Requirements))
	for _, r := range c.Requirements {
		out[r.RequirementID] = r.Severity
	}
	return out
}

// GetPollInterval returns how often the watcher looks for unprocessed scans.
// Returns the default if specified, otherwise 2 minutes
func (c *Catalog) GetPollInterval() (time.Duration, error) {
	if c.Defaults.PollInterval != "" {
		return parseInterval(c.Defaults.PollInterval)
	}
	return 2 * time.Minute, nil
}

// GetReapplyInterval returns how often exclusions are re-applied to the
// latest scan. Returns the default if specified, otherwise 1 day
func (c *Catalog) GetReapplyInterval() (time.Duration, error) {
	if c.Defaults.ReapplyInterval != "" {
		return parseInterval(c.Defaults.ReapplyInterval)
	}
	return 24 * time.Hour, nil
}

// GetPolicy returns the configured score gate, or nil for the built-in default
func (c *Catalog) GetPolicy() *PolicyConfig {
	return c.Defaults.Policy
}

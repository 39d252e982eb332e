package exclusion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

// Lookup answers the existence questions validators ask of non-admin requests.
type Lookup interface {
	LatestCompletedScanID(ctx context.Context) (string, error)
	FindingExists(ctx context.Context, key types.FindingKey) (bool, error)
	RequirementExists(ctx context.Context, requirementID string) (bool, error)
}

// Input is what a validator sees.
type Input struct {
	Old         map[string]any
	Prospective map[string]any
	Request     map[string]any
	Type        types.ExclusionType
	IsAdmin     bool
	Now         time.Time
	Lookup      Lookup
}

// Validator checks one request field. A nil violation means the field is
// valid; an error means the check itself could not run.
type Validator func(ctx context.Context, in *Input) (*errors.FieldViolation, error)

func violation(format string, args ...any) *errors.FieldViolation {
	return &errors.FieldViolation{Message: fmt.Sprintf(format, args...)}
}

func validateAccountID(_ context.Context, in *Input) (*errors.FieldViolation, error) {
	account, _ := in.Request["accountId"].(string)
	if account == types.Wildcard {
		if in.IsAdmin {
			return nil, nil
		}
		return violation("User endpoint cannot manage wildcard exclusions"), nil
	}
	if len(account) != 12 {
		return violation("accountId must be a valid 12-digit account ID"), nil
	}
	for _, r := range account {
		if r < '0' || r > '9' {
			return violation("accountId must be a numeric string"), nil
		}
	}
	return nil, nil
}

func validateExpirationDate(_ context.Context, in *Input) (*errors.FieldViolation, error) {
	return checkExpiration(in.Request["expirationDate"], in.Type, in.Now), nil
}

func checkExpiration(value any, cfg types.ExclusionType, now time.Time) *errors.FieldViolation {
	s, _ := value.(string)
	expiration, err := types.ParseDate(s)
	if err != nil {
		return violation("Unable to parse datetime")
	}
	delta := expiration.Sub(now)
	if delta <= 0 {
		return violation("expirationDate must be in the future")
	}
	if days := int(delta / (24 * time.Hour)); cfg.MaxDurationInDays <= days {
		return violation("expirationDate must be less than the configured maxDurationInDays: %d", cfg.MaxDurationInDays)
	}
	return nil
}

func validateResourceID(ctx context.Context, in *Input) (*errors.FieldViolation, error) {
	if in.IsAdmin {
		return nil, nil
	}
	resource, _ := in.Request["resourceId"].(string)
	if strings.Contains(resource, types.Wildcard) {
		return violation("User cannot manage wildcard exclusions"), nil
	}
	if in.Lookup == nil {
		return nil, errors.NewPermanentf("no lookup configured for resource validation")
	}
	scanID, err := in.Lookup.LatestCompletedScanID(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest completed scan: %w", err)
	}
	key := types.FindingKey{
		ScanID:        scanID,
		AccountID:     stringField(in.Request, in.Prospective, "accountId"),
		ResourceID:    resource,
		RequirementID: stringField(in.Request, in.Prospective, "requirementId"),
	}
	exists, err := in.Lookup.FindingExists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("finding lookup: %w", err)
	}
	if !exists {
		return violation("Cannot find resource"), nil
	}
	return nil, nil
}

func validateRequirementID(ctx context.Context, in *Input) (*errors.FieldViolation, error) {
	requirement, _ := in.Request["requirementId"].(string)
	if strings.Contains(requirement, types.Wildcard) {
		return violation("Wildcard requirements are not supported"), nil
	}
	if in.IsAdmin {
		return nil, nil
	}
	if in.Lookup == nil {
		return nil, errors.NewPermanentf("no lookup configured for requirement validation")
	}
	exists, err := in.Lookup.RequirementExists(ctx, requirement)
	if err != nil {
		return nil, fmt.Errorf("requirement lookup: %w", err)
	}
	if !exists {
		return violation("Requirement not found"), nil
	}
	return nil, nil
}

func validateFormFields(_ context.Context, in *Input) (*errors.FieldViolation, error) {
	return checkFormFields(in.Old, in.Request["formFields"], in.Type), nil
}

func checkFormFields(old map[string]any, value any, cfg types.ExclusionType) *errors.FieldViolation {
	incoming, ok := value.(map[string]any)
	if !ok {
		return violation("formFields must be an object")
	}
	existing, _ := old["formFields"].(map[string]any)
	merged := Merge(existing, incoming)

	for k, v := range merged {
		if _, ok := v.(string); !ok {
			return violation("formFields.%s must be a string", k)
		}
	}

	var missing, extra []string
	for k := range cfg.FormFields {
		if _, ok := merged[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range merged {
		if _, ok := cfg.FormFields[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return &errors.FieldViolation{Message: "Invalid form fields", MissingKeys: missing, ExtraKeys: extra}
}

var changeRequestKeys = map[string]bool{"formFields": true, "expirationDate": true}

func validateUpdateRequested(_ context.Context, in *Input) (*errors.FieldViolation, error) {
	raw := in.Request["updateRequested"]
	if raw == nil {
		return nil, nil
	}
	requested, ok := raw.(map[string]any)
	if !ok {
		return violation("updateRequested must be an object"), nil
	}
	if len(requested) == 0 {
		return nil, nil
	}

	var extra []string
	for k := range requested {
		if !changeRequestKeys[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return &errors.FieldViolation{Message: "Invalid update request", ExtraKeys: extra}, nil
	}

	if fields, ok := requested["formFields"]; ok {
		if v := checkFormFields(in.Old, fields, in.Type); v != nil {
			return v, nil
		}
	}
	if date, ok := requested["expirationDate"]; ok {
		if v := checkExpiration(date, in.Type, in.Now); v != nil {
			return v, nil
		}
	}
	return nil, nil
}

func validateAdminComments(_ context.Context, in *Input) (*errors.FieldViolation, error) {
	if _, ok := in.Request["adminComments"].(string); !ok {
		return violation("Admin comments must be a string"), nil
	}
	return nil, nil
}

func validateHidesResources(_ context.Context, in *Input) (*errors.FieldViolation, error) {
	if _, ok := in.Request["hidesResources"].(bool); !ok {
		return violation("hidesResources must be a boolean"), nil
	}
	return nil, nil
}

func stringField(request, fallback map[string]any, key string) string {
	if v, ok := request[key].(string); ok {
		return v
	}
	v, _ := fallback[key].(string)
	return v
}

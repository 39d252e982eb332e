// Package remediation runs remediation workers against non-compliant
// resources under two separately elevated credential sets.
package remediation

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/daimoniac/scorecard/internal/types"
)

// Outcome statuses returned by Pipeline.Run.
const (
	StatusSuccess             = "success"
	StatusError               = "error"
	StatusValidationError     = "validationError"
	StatusIacOverrideRequired = "iacOverrideRequired"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageValidateInput          Stage = "validate_input"
	StageReadonlyCredentials    Stage = "readonly_credentials"
	StageIacCheck               Stage = "iac_check"
	StageResourceCheck          Stage = "resource_check"
	StageRemediationCredentials Stage = "remediation_credentials"
	StageRemediate              Stage = "remediate"
)

// Verdict is a stage result. Message explains a failure or describes success.
type Verdict struct {
	OK      bool
	Message string
}

// IacVerdict reports whether a resource is managed by infrastructure as code.
type IacVerdict struct {
	ManagedByIac bool
	Message      string
}

// Session is a time-limited credential scope for one role.
type Session struct {
	Role    string
	Name    string
	Config  aws.Config
	Expires time.Time
}

// Request carries everything a worker needs for one remediation.
type Request struct {
	Finding               types.Finding
	RemediationParameters map[string]any
	RequirementParameters map[string]any
	OverrideIacWarning    bool
	ReadonlyRole          string
	RemediationRole       string
	UserEmail             string
}

// SessionName is the role session name used for both elevations.
func (r *Request) SessionName() string {
	name := "remediation-" + r.UserEmail
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// Worker implements one kind of remediation. The methods are only ever
// called by Pipeline.Run, in declaration order. A returned error is treated
// as an unexpected fault.
type Worker interface {
	ValidateInput(ctx context.Context, req *Request) (Verdict, error)
	IacCheck(ctx context.Context, session *Session, req *Request) (IacVerdict, error)
	ResourceCheck(ctx context.Context, session *Session, req *Request) (Verdict, error)
	Remediate(ctx context.Context, session *Session, req *Request) (Verdict, error)
}

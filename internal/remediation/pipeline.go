package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/daimoniac/scorecard/internal/observability"
)

const tracerName = "github.com/daimoniac/scorecard/internal/remediation"

// Outcome is the terminal result of a pipeline run.
type Outcome struct {
	Status  string
	Message string
	// Stage is where the run stopped.
	Stage Stage
}

// Pipeline sequences the worker stages and the two role elevations.
type Pipeline struct {
	elevator Elevator
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewPipeline creates a pipeline
func NewPipeline(elevator Elevator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		elevator: elevator,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Run executes w for req. It never panics and never returns a status
// outside the four outcome statuses.
func (p *Pipeline) Run(ctx context.Context, w Worker, req *Request) (out Outcome) {
	ncrID := req.Finding.NCRID()
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "remediation.run", trace.WithAttributes(
		attribute.String("ncr_id", ncrID),
		attribute.String("requirement_id", req.Finding.RequirementID),
	))
	defer func() {
		span.SetAttributes(attribute.String("status", out.Status), attribute.String("stage", string(out.Stage)))
		if out.Status != StatusSuccess {
			span.SetStatus(codes.Error, out.Message)
		}
		span.End()
		observability.GetMetrics().RemediationsTotal.WithLabelValues(out.Status).Inc()
		observability.GetMetrics().RemediationDuration.Observe(time.Since(start).Seconds())
	}()

	var stage Stage
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("remediation worker panicked",
				"ncr_id", ncrID,
				"stage", stage,
				"panic", fmt.Sprint(r))
			out = Outcome{Status: StatusError, Message: "Error during remediation", Stage: stage}
		}
	}()

	fault := func(err error) Outcome {
		p.logger.Error("remediation stage failed unexpectedly",
			"ncr_id", ncrID,
			"stage", stage,
			"error", err)
		return Outcome{Status: StatusError, Message: "Error during remediation", Stage: stage}
	}

	stage = StageValidateInput
	valid, err := p.validate(ctx, w, req)
	if err != nil {
		return fault(err)
	}
	if !valid.OK {
		return Outcome{Status: StatusValidationError, Message: "Invalid parameters: " + valid.Message, Stage: stage}
	}

	stage = StageReadonlyCredentials
	readonly, err := p.elevate(ctx, req.ReadonlyRole, req.SessionName())
	if err != nil {
		p.logger.Warn("unable to assume read only role", "ncr_id", ncrID, "role", req.ReadonlyRole, "error", err)
		return Outcome{Status: StatusError, Message: "Unable to assume read only role", Stage: stage}
	}

	stage = StageIacCheck
	iac, err := p.iacCheck(ctx, w, readonly, req)
	if err != nil {
		return fault(err)
	}
	if iac.ManagedByIac && !req.OverrideIacWarning {
		return Outcome{Status: StatusIacOverrideRequired, Message: "IAC override required: " + iac.Message, Stage: stage}
	}

	stage = StageResourceCheck
	resource, err := p.resourceCheck(ctx, w, readonly, req)
	if err != nil {
		return fault(err)
	}
	if !resource.OK {
		return Outcome{Status: StatusError, Message: "Resource is invalid, remediate manually: " + resource.Message, Stage: stage}
	}

	stage = StageRemediationCredentials
	mutating, err := p.elevate(ctx, req.RemediationRole, req.SessionName())
	if err != nil {
		p.logger.Warn("unable to assume remediation role", "ncr_id", ncrID, "role", req.RemediationRole, "error", err)
		return Outcome{Status: StatusError, Message: "Unable to assume remediation role", Stage: stage}
	}

	stage = StageRemediate
	result, err := p.remediate(ctx, w, mutating, req)
	if err != nil {
		return fault(err)
	}
	if !result.OK {
		return Outcome{Status: StatusError, Message: result.Message, Stage: stage}
	}
	return Outcome{Status: StatusSuccess, Message: result.Message, Stage: stage}
}

func (p *Pipeline) validate(ctx context.Context, w Worker, req *Request) (Verdict, error) {
	ctx, span := p.tracer.Start(ctx, "remediation."+string(StageValidateInput))
	defer span.End()
	return w.ValidateInput(ctx, req)
}

func (p *Pipeline) elevate(ctx context.Context, role, sessionName string) (*Session, error) {
	ctx, span := p.tracer.Start(ctx, "remediation.assume_role", trace.WithAttributes(attribute.String("role", role)))
	defer span.End()
	if p.elevator == nil {
		return nil, fmt.Errorf("no elevator configured")
	}
	session, err := p.elevator.AssumeRole(ctx, role, sessionName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return session, nil
}

func (p *Pipeline) iacCheck(ctx context.Context, w Worker, session *Session, req *Request) (IacVerdict, error) {
	ctx, span := p.tracer.Start(ctx, "remediation."+string(StageIacCheck))
	defer span.End()
	return w.IacCheck(ctx, session, req)
}

func (p *Pipeline) resourceCheck(ctx context.Context, w Worker, session *Session, req *Request) (Verdict, error) {
	ctx, span := p.tracer.Start(ctx, "remediation."+string(StageResourceCheck))
	defer span.End()
	return w.ResourceCheck(ctx, session, req)
}

func (p *Pipeline) remediate(ctx context.Context, w Worker, session *Session, req *Request) (Verdict, error) {
	ctx, span := p.tracer.Start(ctx, "remediation."+string(StageRemediate))
	defer span.End()
	return w.Remediate(ctx, session, req)
}

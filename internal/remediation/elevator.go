package remediation

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Elevator exchanges the service identity for a scoped role session.
type Elevator interface {
	AssumeRole(ctx context.Context, role, sessionName string) (*Session, error)
}

// STSAPI is the subset of the STS client used by STSElevator.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// STSElevator assumes roles through AWS STS.
type STSElevator struct {
	client   STSAPI
	base     aws.Config
	duration time.Duration
}

// NewSTSElevator creates an elevator using the given base configuration
func NewSTSElevator(cfg aws.Config) *STSElevator {
	return &STSElevator{
		client:   sts.NewFromConfig(cfg),
		base:     cfg,
		duration: 15 * time.Minute,
	}
}

// NewSTSElevatorWithClient creates an elevator with a custom STS client
func NewSTSElevatorWithClient(cfg aws.Config, client STSAPI) *STSElevator {
	return &STSElevator{client: client, base: cfg, duration: 15 * time.Minute}
}

// AssumeRole returns a session whose Config signs with the role's temporary credentials
func (e *STSElevator) AssumeRole(ctx context.Context, role, sessionName string) (*Session, error) {
	out, err := e.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(role),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(int32(e.duration.Seconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("assume role %s: %w", role, err)
	}
	if out.Credentials == nil {
		return nil, fmt.Errorf("assume role %s: no credentials returned", role)
	}

	creds := out.Credentials
	cfg := e.base.Copy()
	cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		aws.ToString(creds.AccessKeyId),
		aws.ToString(creds.SecretAccessKey),
		aws.ToString(creds.SessionToken),
	))

	return &Session{
		Role:    role,
		Name:    sessionName,
		Config:  cfg,
		Expires: aws.ToTime(creds.Expiration),
	}, nil
}

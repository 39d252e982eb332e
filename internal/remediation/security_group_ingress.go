package remediation

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// SecurityGroupIngressWorkerName is the catalog name of the worker that
// replaces 0.0.0.0/0 on an ingress rule with a caller supplied CIDR.
const SecurityGroupIngressWorkerName = "security-group-ingress"

const openCIDR = "0.0.0.0/0"

// EC2API is the subset of the EC2 client used by SecurityGroupIngressWorker.
type EC2API interface {
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	RevokeSecurityGroupIngress(ctx context.Context, params *ec2.RevokeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error)
}

// EC2ClientFactory builds a regional client from a session.
type EC2ClientFactory func(session *Session, region string) EC2API

// DefaultEC2ClientFactory builds a real EC2 client.
func DefaultEC2ClientFactory(session *Session, region string) EC2API {
	return ec2.NewFromConfig(session.Config, func(o *ec2.Options) {
		if region != "" {
			o.Region = region
		}
	})
}

// SecurityGroupIngressWorker narrows a world-open ingress rule. The finding's
// resource id is the security group id; its reason names the protocols.
type SecurityGroupIngressWorker struct {
	clients EC2ClientFactory
	group   *ec2types.SecurityGroup
}

// NewSecurityGroupIngressWorker creates the worker
func NewSecurityGroupIngressWorker(clients EC2ClientFactory) *SecurityGroupIngressWorker {
	if clients == nil {
		clients = DefaultEC2ClientFactory
	}
	return &SecurityGroupIngressWorker{clients: clients}
}

// SecurityGroupIngressFactory returns a registry factory for the worker
func SecurityGroupIngressFactory(clients EC2ClientFactory) Factory {
	return func() Worker { return NewSecurityGroupIngressWorker(clients) }
}

func (w *SecurityGroupIngressWorker) ValidateInput(_ context.Context, req *Request) (Verdict, error) {
	cidr, ok := req.RemediationParameters["cidrRange"].(string)
	if !ok {
		return Verdict{Message: "cidrRange must be a string"}, nil
	}
	if msg := validateCIDR(cidr); msg != "" {
		return Verdict{Message: msg}, nil
	}
	if _, ok := req.RemediationParameters["description"].(string); !ok {
		return Verdict{Message: "description must be a string"}, nil
	}
	if _, err := requiredPort(req); err != nil {
		return Verdict{}, err
	}
	return Verdict{OK: true}, nil
}

func (w *SecurityGroupIngressWorker) IacCheck(ctx context.Context, session *Session, req *Request) (IacVerdict, error) {
	if err := w.describe(ctx, session, req); err != nil {
		return IacVerdict{}, err
	}
	for _, tag := range w.group.Tags {
		if aws.ToString(tag.Key) == "aws:cloudformation:stack-name" {
			return IacVerdict{
				ManagedByIac: true,
				Message:      "security group part of stack:" + aws.ToString(tag.Value),
			}, nil
		}
	}
	return IacVerdict{}, nil
}

func (w *SecurityGroupIngressWorker) ResourceCheck(ctx context.Context, session *Session, req *Request) (Verdict, error) {
	if w.group == nil {
		if err := w.describe(ctx, session, req); err != nil {
			return Verdict{}, err
		}
	}
	port, err := requiredPort(req)
	if err != nil {
		return Verdict{}, err
	}

	for _, rule := range w.group.IpPermissions {
		if !hasOpenRange(rule) {
			continue
		}
		from, to := aws.ToInt32(rule.FromPort), aws.ToInt32(rule.ToPort)
		if from != to {
			return Verdict{Message: "Port range found. Must be single port."}, nil
		}
		if from != port {
			return Verdict{Message: "Port mismatch between expected and observed"}, nil
		}
		if len(rule.Ipv6Ranges) > 0 {
			return Verdict{Message: "rule involves ipv4 and ipv6 ranges. ipv6 not supported."}, nil
		}
		return Verdict{OK: true}, nil
	}
	return Verdict{Message: "Security group has no invalid rules"}, nil
}

func (w *SecurityGroupIngressWorker) Remediate(ctx context.Context, session *Session, req *Request) (Verdict, error) {
	if w.group == nil {
		if err := w.describe(ctx, session, req); err != nil {
			return Verdict{}, err
		}
	}
	port, err := requiredPort(req)
	if err != nil {
		return Verdict{}, err
	}
	protocols, err := connectionProtocols(req.Finding.Reason)
	if err != nil {
		return Verdict{}, err
	}
	cidr := req.RemediationParameters["cidrRange"].(string)
	description := req.RemediationParameters["description"].(string)

	authorize, revoke := planIngressChange(w.group.IpPermissions, cidr, description, port, protocols)
	if len(authorize) == 0 {
		return Verdict{Message: "no matching ingress rule to remediate"}, nil
	}

	client := w.clients(session, req.Finding.Region)
	groupID := aws.String(req.Finding.ResourceID)
	if _, err := client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       groupID,
		IpPermissions: authorize,
	}); err != nil {
		return Verdict{Message: "error remediating security group"}, nil
	}
	if _, err := client.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
		GroupId:       groupID,
		IpPermissions: revoke,
	}); err != nil {
		return Verdict{Message: "error remediating security group"}, nil
	}
	return Verdict{OK: true, Message: "security group remediated"}, nil
}

func (w *SecurityGroupIngressWorker) describe(ctx context.Context, session *Session, req *Request) error {
	client := w.clients(session, req.Finding.Region)
	out, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{req.Finding.ResourceID},
	})
	if err != nil {
		return fmt.Errorf("describe security group %s: %w", req.Finding.ResourceID, err)
	}
	if len(out.SecurityGroups) == 0 {
		return fmt.Errorf("security group %s not found", req.Finding.ResourceID)
	}
	w.group = &out.SecurityGroups[0]
	return nil
}

// planIngressChange returns the permissions to authorize (the new CIDR) and
// to revoke (the open range) for every rule on port using one of protocols.
func planIngressChange(rules []ec2types.IpPermission, cidr, description string, port int32, protocols map[string]bool) (authorize, revoke []ec2types.IpPermission) {
	for _, rule := range rules {
		protocol := aws.ToString(rule.IpProtocol)
		if !protocols[protocol] || aws.ToInt32(rule.FromPort) != port || !hasOpenRange(rule) {
			continue
		}
		authorize = append(authorize, ec2types.IpPermission{
			IpProtocol: aws.String(protocol),
			FromPort:   aws.Int32(port),
			ToPort:     aws.Int32(port),
			IpRanges:   []ec2types.IpRange{{CidrIp: aws.String(cidr), Description: aws.String(description)}},
		})
		revoke = append(revoke, ec2types.IpPermission{
			IpProtocol: aws.String(protocol),
			FromPort:   aws.Int32(port),
			ToPort:     aws.Int32(port),
			IpRanges:   []ec2types.IpRange{{CidrIp: aws.String(openCIDR)}},
		})
	}
	return authorize, revoke
}

func hasOpenRange(rule ec2types.IpPermission) bool {
	for _, r := range rule.IpRanges {
		if aws.ToString(r.CidrIp) == openCIDR {
			return true
		}
	}
	return false
}

func connectionProtocols(reason string) (map[string]bool, error) {
	reason = strings.ToLower(reason)
	protocols := map[string]bool{}
	if strings.Contains(reason, "tcp") {
		protocols["tcp"] = true
	}
	if strings.Contains(reason, "udp") {
		protocols["udp"] = true
	}
	if len(protocols) == 0 {
		return nil, fmt.Errorf("no connection protocols found in reason of ncr")
	}
	return protocols, nil
}

func requiredPort(req *Request) (int32, error) {
	switch v := req.RequirementParameters["port"].(type) {
	case int:
		return int32(v), nil
	case int32:
		return v, nil
	case int64:
		return int32(v), nil
	case float64:
		return int32(v), nil
	default:
		return 0, fmt.Errorf("requirement parameter port is missing or not a number")
	}
}

// validateCIDR returns an empty string for a valid IPv4 CIDR.
func validateCIDR(cidr string) string {
	addr, bits, ok := strings.Cut(cidr, "/")
	if !ok {
		return "invalid ip address"
	}
	prefix, err := netip.ParsePrefix(addr + "/" + bits)
	if err != nil {
		if _, perr := netip.ParseAddr(addr); perr != nil {
			return "invalid ip address"
		}
		return "invalid subnet mask in cidr range"
	}
	if !prefix.Addr().Is4() {
		return "invalid ip address"
	}
	return ""
}

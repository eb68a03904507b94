package domain

import (
	"errors"
	"fmt"
	"strings"
)

// SignaturePolicy names which party or parties must approve before funds
// release.
type SignaturePolicy string

const (
	PolicySender   SignaturePolicy = "SENDER"
	PolicyReceiver SignaturePolicy = "RECEIVER"
	PolicyDual     SignaturePolicy = "DUAL"
)

// ApprovalRole identifies which side of the escrow an approval comes from.
type ApprovalRole string

const (
	RoleSender   ApprovalRole = "sender"
	RoleReceiver ApprovalRole = "receiver"
)

var (
	ErrInvalidPolicy = errors.New("invalid signature policy")
	ErrInvalidRole   = errors.New("invalid approval role")
)

func ParsePolicy(s string) (SignaturePolicy, error) {
	switch SignaturePolicy(strings.ToUpper(strings.TrimSpace(s))) {
	case PolicySender:
		return PolicySender, nil
	case PolicyReceiver:
		return PolicyReceiver, nil
	case PolicyDual:
		return PolicyDual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

func ParseRole(s string) (ApprovalRole, error) {
	switch ApprovalRole(strings.ToLower(strings.TrimSpace(s))) {
	case RoleSender:
		return RoleSender, nil
	case RoleReceiver:
		return RoleReceiver, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Executable answers whether the collected approvals satisfy the policy.
// Unknown policies fail closed.
func Executable(policy SignaturePolicy, senderApproved, receiverApproved bool) (bool, error) {
	switch policy {
	case PolicySender:
		return senderApproved, nil
	case PolicyReceiver:
		return receiverApproved, nil
	case PolicyDual:
		return senderApproved && receiverApproved, nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
}

// RequiresRole reports whether an approval by role is relevant to the
// policy. Approvals by a role the policy never consults are rejected rather
// than recorded.
func RequiresRole(policy SignaturePolicy, role ApprovalRole) (bool, error) {
	switch policy {
	case PolicySender:
		return role == RoleSender, nil
	case PolicyReceiver:
		return role == RoleReceiver, nil
	case PolicyDual:
		return role == RoleSender || role == RoleReceiver, nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
}

// MissingRole names the role whose approval is still outstanding, for
// user-facing "awaiting X approval" messages. Only meaningful when the
// policy is valid and not yet satisfied.
func MissingRole(policy SignaturePolicy, senderApproved, receiverApproved bool) ApprovalRole {
	switch policy {
	case PolicySender:
		return RoleSender
	case PolicyReceiver:
		return RoleReceiver
	case PolicyDual:
		if !senderApproved {
			return RoleSender
		}
		return RoleReceiver
	}
	return ""
}

// SignerRoles lists the custodial keys required to sign the release under
// the policy.
func SignerRoles(policy SignaturePolicy) ([]ApprovalRole, error) {
	switch policy {
	case PolicySender:
		return []ApprovalRole{RoleSender}, nil
	case PolicyReceiver:
		return []ApprovalRole{RoleReceiver}, nil
	case PolicyDual:
		return []ApprovalRole{RoleSender, RoleReceiver}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
}

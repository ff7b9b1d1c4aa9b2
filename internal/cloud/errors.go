package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/me/hibernate/pkg/model"
)

// AuthorizationError means a role could not be assumed: revoked trust,
// bad ARN, or a trust policy mismatch.
type AuthorizationError struct {
	RoleARN string
	Err     error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("assume role %s: %v", e.RoleARN, e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// InstanceActionError means an instance command failed: instance not found,
// insufficient permission, or a transient provider error.
type InstanceActionError struct {
	InstanceID string
	Action     model.Action
	Err        error
}

func (e *InstanceActionError) Error() string {
	return fmt.Sprintf("%s instance %s: %v", e.Action, e.InstanceID, e.Err)
}

func (e *InstanceActionError) Unwrap() error { return e.Err }

// InventoryError means an instance listing query failed.
type InventoryError struct {
	Err error
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("list instances: %v", e.Err)
}

func (e *InventoryError) Unwrap() error { return e.Err }

// TimeoutError means an external call exceeded its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: deadline exceeded: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// timedOut reports whether err is the result of a context deadline.
func timedOut(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// ProviderErrorCode extracts the AWS API error code inside err
// (e.g. "AccessDenied", "InvalidInstanceID.NotFound"). Empty when err did
// not come from the provider.
func ProviderErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

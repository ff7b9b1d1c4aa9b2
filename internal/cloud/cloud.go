// Package cloud is the engine's boundary to the user's AWS account: a
// credential broker that exchanges a stored role ARN for short-lived
// delegated credentials, and an instance client that issues idempotent
// start/stop commands and inventory queries with them.
package cloud

import (
	"context"
	"time"

	"github.com/me/hibernate/pkg/model"
)

// Credentials are short-lived delegated credentials obtained per use.
// They are owned transiently by the evaluation step that requested them
// and are never persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiry          time.Time
}

// Expired reports whether the credentials are unusable at the given time.
func (c Credentials) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// CredentialBroker exchanges a role reference for delegated credentials.
// Failures surface as *AuthorizationError (or *TimeoutError when the
// exchange exceeded its deadline).
type CredentialBroker interface {
	Assume(ctx context.Context, roleARN, region string) (Credentials, error)
}

// InstanceClient issues commands and queries against a cloud account using
// delegated credentials. SetInstanceState is idempotent: stopping an
// already-stopped instance (or starting a running one) succeeds as a no-op.
// Failures surface as *InstanceActionError or *TimeoutError.
type InstanceClient interface {
	SetInstanceState(ctx context.Context, creds Credentials, instanceID string, action model.Action, region string) error
	ListInstances(ctx context.Context, creds Credentials, region string) ([]model.Instance, error)
}

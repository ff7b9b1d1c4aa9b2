package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// sessionName identifies the engine's assumed-role sessions in the
// account's CloudTrail.
const sessionName = "hibernate-saas-session"

// cacheMargin is how long before the provider-reported expiry a cached
// credential set is discarded. Staleness therefore never exceeds the
// session duration.
const cacheMargin = time.Minute

// stsAPI is the subset of the STS client the broker uses.
type stsAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

type brokerKey struct {
	roleARN string
	region  string
}

// STSBroker implements CredentialBroker via STS AssumeRole, with a short
// per (role, region) cache so a user with many schedules does not pay one
// STS round trip per schedule per tick.
type STSBroker struct {
	client   stsAPI
	duration time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[brokerKey]Credentials
}

// NewSTSBroker builds a broker backed by the default AWS credential chain
// (env, shared profile, etc.). sessionDuration bounds the delegated
// credentials' lifetime.
func NewSTSBroker(ctx context.Context, sessionDuration time.Duration, logger *slog.Logger) (*STSBroker, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSTSBroker(sts.NewFromConfig(cfg), sessionDuration, logger), nil
}

func newSTSBroker(client stsAPI, sessionDuration time.Duration, logger *slog.Logger) *STSBroker {
	if sessionDuration <= 0 {
		sessionDuration = time.Hour
	}
	return &STSBroker{
		client:   client,
		duration: sessionDuration,
		logger:   logger.With("component", "broker"),
		cache:    make(map[brokerKey]Credentials),
	}
}

// Assume exchanges roleARN for delegated credentials in the given region,
// serving from cache while the cached set is comfortably inside its expiry.
func (b *STSBroker) Assume(ctx context.Context, roleARN, region string) (Credentials, error) {
	key := brokerKey{roleARN: roleARN, region: region}
	now := time.Now()

	b.mu.Lock()
	if creds, ok := b.cache[key]; ok && now.Before(creds.Expiry.Add(-cacheMargin)) {
		b.mu.Unlock()
		b.logger.Debug("credential cache hit", "role_arn", roleARN, "region", region)
		return creds, nil
	}
	b.mu.Unlock()

	out, err := b.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(int32(b.duration.Seconds())),
	}, func(o *sts.Options) {
		if region != "" {
			o.Region = region
		}
	})
	if err != nil {
		if timedOut(err) {
			return Credentials{}, &TimeoutError{Op: "assume role " + roleARN, Err: err}
		}
		return Credentials{}, &AuthorizationError{RoleARN: roleARN, Err: err}
	}

	creds := Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Expiry:          aws.ToTime(out.Credentials.Expiration),
	}

	b.mu.Lock()
	b.cache[key] = creds
	b.mu.Unlock()

	b.logger.Debug("role assumed", "role_arn", roleARN, "region", region, "expiry", creds.Expiry)
	return creds, nil
}

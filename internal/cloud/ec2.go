package cloud

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"golang.org/x/time/rate"

	"github.com/me/hibernate/pkg/model"
)

// ec2API is the subset of the EC2 client the invoker uses. It matches
// ec2.DescribeInstancesAPIClient so the SDK paginator accepts it.
type ec2API interface {
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// EC2Client implements InstanceClient against EC2. Each call builds a
// throwaway SDK client from the delegated credentials; nothing is retained
// past the call. A shared rate limiter bounds outbound API calls across all
// users to stay clear of provider throttling.
type EC2Client struct {
	logger    *slog.Logger
	limiter   *rate.Limiter
	newClient func(ctx context.Context, creds Credentials, region string) (ec2API, error)
}

// NewEC2Client creates an invoker. callsPerSecond <= 0 disables rate
// limiting.
func NewEC2Client(callsPerSecond float64, logger *slog.Logger) *EC2Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if callsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(callsPerSecond), 1)
	}
	return &EC2Client{
		logger:    logger.With("component", "ec2"),
		limiter:   limiter,
		newClient: newEC2API,
	}
}

func newEC2API(ctx context.Context, creds Credentials, region string) (ec2API, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return ec2.NewFromConfig(cfg), nil
}

// SetInstanceState issues a start or stop command. EC2 treats a command
// matching the instance's current state as a no-op, which gives the engine
// its idempotence without pre-checking state.
func (c *EC2Client) SetInstanceState(ctx context.Context, creds Credentials, instanceID string, action model.Action, region string) error {
	if !action.Valid() {
		return &InstanceActionError{InstanceID: instanceID, Action: action,
			Err: fmt.Errorf("unknown action %q", action)}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return c.actionErr(instanceID, action, err)
	}

	client, err := c.newClient(ctx, creds, region)
	if err != nil {
		return c.actionErr(instanceID, action, err)
	}

	switch action {
	case model.ActionStart:
		_, err = client.StartInstances(ctx, &ec2.StartInstancesInput{
			InstanceIds: []string{instanceID},
		})
	case model.ActionStop:
		_, err = client.StopInstances(ctx, &ec2.StopInstancesInput{
			InstanceIds: []string{instanceID},
		})
	}
	if err != nil {
		return c.actionErr(instanceID, action, err)
	}

	c.logger.Debug("instance state set", "instance_id", instanceID, "action", action, "region", region)
	return nil
}

// ListInstances returns the account's instance inventory in the region.
func (c *EC2Client) ListInstances(ctx context.Context, creds Credentials, region string) ([]model.Instance, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.listErr(err)
	}

	client, err := c.newClient(ctx, creds, region)
	if err != nil {
		return nil, c.listErr(err)
	}

	var out []model.Instance
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, c.listErr(err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				id := stringOrEmpty(inst.InstanceId)
				item := model.Instance{
					ID:   id,
					Type: string(inst.InstanceType),
					Name: id,
				}
				if inst.State != nil {
					item.State = string(inst.State.Name)
				}
				for _, tag := range inst.Tags {
					if stringOrEmpty(tag.Key) == "Name" && stringOrEmpty(tag.Value) != "" {
						item.Name = stringOrEmpty(tag.Value)
						break
					}
				}
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (c *EC2Client) actionErr(instanceID string, action model.Action, err error) error {
	if timedOut(err) {
		return &TimeoutError{Op: fmt.Sprintf("%s instance %s", action, instanceID), Err: err}
	}
	return &InstanceActionError{InstanceID: instanceID, Action: action, Err: err}
}

func (c *EC2Client) listErr(err error) error {
	if timedOut(err) {
		return &TimeoutError{Op: "list instances", Err: err}
	}
	return &InventoryError{Err: err}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/ManuelReschke/paygate/internal/pkg/config"
	"github.com/ManuelReschke/paygate/internal/pkg/env"
)

// Load builds the aws.Config shared by the SSM, DynamoDB, Cognito and S3 clients.
// Static credentials are only used when both keys are present (local stacks);
// otherwise the default chain (role, profile) applies.
func Load(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AWSRegion),
	}

	accessKey := env.GetEnv("AWS_ACCESS_KEY_ID", "")
	secretKey := env.GetEnv("AWS_SECRET_ACCESS_KEY", "")
	if cfg.IsLocal() && accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.AWSEndpointURL != "" {
		awsConfig.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
	}
	return awsConfig, nil
}

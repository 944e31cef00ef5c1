package secrets

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/ManuelReschke/paygate/internal/pkg/env"
)

// SSMAPI is the subset of the SSM client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMStore reads parameters from AWS Systems Manager Parameter Store.
type SSMStore struct {
	client SSMAPI
}

func NewSSMStore(client SSMAPI) *SSMStore {
	return &SSMStore{client: client}
}

func (s *SSMStore) GetParameter(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", ErrNotFound
	}
	return aws.ToString(out.Parameter.Value), nil
}

// EnvStore serves parameters from environment variables for local development.
// "/acme/dev0/user-pool-client-id" is looked up as USER_POOL_CLIENT_ID.
type EnvStore struct{}

func (EnvStore) GetParameter(_ context.Context, name string) (string, error) {
	key := EnvKey(name)
	if v := env.GetEnv(key, ""); v != "" {
		return v, nil
	}
	return "", ErrNotFound
}

// EnvKey maps a parameter name onto its environment variable.
func EnvKey(name string) string {
	base := path.Base(name)
	return strings.ToUpper(strings.ReplaceAll(base, "-", "_"))
}

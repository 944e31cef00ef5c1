package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
)

type flakyStore struct {
	failures int
	calls    int
	value    string
}

func (s *flakyStore) GetParameter(_ context.Context, _ string) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", ErrNotFound
	}
	return s.value, nil
}

func recordSleep(delays *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestResolveRetriesWithExponentialBackoff(t *testing.T) {
	store := &flakyStore{failures: 2, value: "client-123"}
	var delays []time.Duration

	got, err := NewResolver(store).WithSleep(recordSleep(&delays)).Resolve(context.Background(), "/acme/dev0/user-pool-client-id")
	require.NoError(t, err)
	assert.Equal(t, "client-123", got)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestResolveGivesUpAfterFiveAttempts(t *testing.T) {
	store := &flakyStore{failures: 100}
	var delays []time.Duration

	_, err := NewResolver(store).WithSleep(recordSleep(&delays)).Resolve(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfigUnavailable))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 5, store.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, delays)
}

func TestResolveStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &flakyStore{failures: 100}
	_, err := NewResolver(store).Resolve(ctx, "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfigUnavailable))
	assert.Equal(t, 1, store.calls)
}

type fakeSSM struct {
	out *ssm.GetParameterOutput
	err error
}

func (f fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return f.out, f.err
}

func TestSSMStore(t *testing.T) {
	ok := NewSSMStore(fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String("v")}}})
	v, err := ok.GetParameter(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	missing := NewSSMStore(fakeSSM{err: &types.ParameterNotFound{}})
	_, err = missing.GetParameter(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)

	empty := NewSSMStore(fakeSSM{out: &ssm.GetParameterOutput{}})
	_, err = empty.GetParameter(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnvStore(t *testing.T) {
	t.Setenv("USER_POOL_SIGNING_KEY", "https://idp.example/jwks.json")

	assert.Equal(t, "USER_POOL_SIGNING_KEY", EnvKey("/acme/dev0/user-pool-signing-key"))
	v, err := EnvStore{}.GetParameter(context.Background(), "/acme/dev0/user-pool-signing-key")
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example/jwks.json", v)

	_, err = EnvStore{}.GetParameter(context.Background(), "/acme/dev0/not-set-anywhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

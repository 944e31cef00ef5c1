package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  [][]byte
	headErr error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, time.March, 7, 23, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "webhooks/2024/03/07/evt_1.json", ObjectKey("evt_1", at))
}

func TestS3ArchiverPutsPayload(t *testing.T) {
	fake := &fakeS3{}
	a := NewS3Archiver(fake, "webhook-archive")
	a.now = func() time.Time { return time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, a.Archive(context.Background(), "evt_9", []byte(`{"id":"evt_9"}`)))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "webhook-archive", aws.ToString(fake.puts[0].Bucket))
	assert.Equal(t, "webhooks/2024/01/02/evt_9.json", aws.ToString(fake.puts[0].Key))
	assert.Equal(t, `{"id":"evt_9"}`, string(fake.bodies[0]))
}

func TestCheckBucket(t *testing.T) {
	a := NewS3Archiver(&fakeS3{headErr: errors.New("forbidden")}, "webhook-archive")
	assert.Error(t, a.CheckBucket(context.Background()))

	a = NewS3Archiver(&fakeS3{}, "webhook-archive")
	assert.NoError(t, a.CheckBucket(context.Background()))
}

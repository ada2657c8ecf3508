package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

func TestSelect(t *testing.T) {
	all, err := Select(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Priority, all)

	got, err := Select([]string{"S3", "iam", "cloudtrail"}, []string{"cloudtrail"})
	require.NoError(t, err)
	assert.Equal(t, []Service{IAM, S3}, got)

	_, err = Select([]string{"iam"}, []string{"iam"})
	assert.EqualError(t, err, "list of services to analyze is empty")

	_, err = Select([]string{"lambda"}, nil)
	assert.Error(t, err)
}

func TestServiceLabelAndRank(t *testing.T) {
	assert.Equal(t, "CloudTrail", CloudTrail.Label())
	assert.Equal(t, 0, CloudTrail.Rank())
	assert.Equal(t, 4, S3.Rank())
	assert.Equal(t, -1, Service("lambda").Rank())
}

func testSnapshot(t *testing.T, env string) *Snapshot {
	t.Helper()
	data, err := tree.ParseJSON([]byte(`{"Roles":[{"RoleName":"b"},{"RoleName":"a"}],"Account":"1"}`))
	require.NoError(t, err)
	snap := New(IAM, data, "us-east-1", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	snap.Environment = env
	return snap
}

func TestStore_FileRoundTripAndForce(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewFileBackend(t.TempDir()))
	snap := testSnapshot(t, "prod")

	_, err := store.Load(ctx, "prod", IAM)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, snap, false))
	assert.ErrorIs(t, store.Save(ctx, snap, false), ErrExists)
	assert.NoError(t, store.Save(ctx, snap, true))

	loaded, err := store.Load(ctx, "prod", IAM)
	require.NoError(t, err)
	assert.Equal(t, snap.FetchedAt, loaded.FetchedAt)
	assert.Equal(t, "us-east-1", loaded.Region)
	assert.Equal(t, []string{"Roles", "Account"}, loaded.Data().Keys())

	roles := tree.MatchAll(loaded.Root, tree.MustParsePattern("IAM.Roles[*].RoleName"))
	require.Len(t, roles, 2)
	assert.Equal(t, "b", roles[0].Node.Text())

	_, err = store.Load(ctx, "staging", IAM)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "default/iam.json", Key("", IAM))
	assert.Equal(t, "prod/ec2.json", Key("prod", EC2))
}

func TestCheckEnvironment(t *testing.T) {
	for _, env := range []string{"", "default", "prod", "eu-west-1.staging", "v2_blue"} {
		assert.NoError(t, CheckEnvironment(env), env)
	}
	for _, env := range []string{"../../x", "..", "a/b", `a\b`, "x..y"} {
		assert.Error(t, CheckEnvironment(env), env)
	}
}

func TestStore_RejectsEscapingEnvironment(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewStore(NewFileBackend(filepath.Join(root, "snapshots")))

	assert.Error(t, store.Save(ctx, testSnapshot(t, "../outside"), true))
	_, err := os.Stat(filepath.Join(root, "outside"))
	assert.True(t, os.IsNotExist(err))

	_, err = store.Load(ctx, "../outside", IAM)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestStore_S3Backend(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	store := NewStore(&S3Backend{Client: fake, Bucket: "audits", Prefix: "scout"})

	require.NoError(t, store.Save(ctx, testSnapshot(t, ""), false))
	assert.Contains(t, fake.objects, "scout/default/iam.json")
	assert.True(t, errors.Is(store.Save(ctx, testSnapshot(t, ""), false), ErrExists))

	loaded, err := store.Load(ctx, "", IAM)
	require.NoError(t, err)
	assert.Equal(t, IAM, loaded.Service)

	_, err = store.Load(ctx, "", S3)
	assert.ErrorIs(t, err, ErrNotFound)
}

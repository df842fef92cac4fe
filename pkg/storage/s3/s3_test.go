package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supporttools/BackupFlow/pkg/backuperr"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/storage/common"
)

type fakeObject struct {
	body     []byte
	modified time.Time
	metadata map[string]string
}

// fakeAPI is an in-memory bucket returning pageSize keys per listing
type fakeAPI struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	pageSize  int
	listErr   error
	deleteErr map[string]error
	lists     int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: map[string]fakeObject{}, pageSize: 2, deleteErr: map[string]error{}}
}

func (f *fakeAPI) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	limit := f.pageSize
	if in.MaxKeys != nil && int(*in.MaxKeys) < limit {
		limit = int(*in.MaxKeys)
	}
	end := start + limit
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.body))),
			LastModified: aws.Time(obj.modified),
			ETag:         aws.String(`"etag-` + k + `"`),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = fakeObject{body: body, modified: time.Now(), metadata: in.Metadata}
	return &s3.PutObjectOutput{ETag: aws.String(`"abc123"`)}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[*in.Key]; err != nil {
		return nil, err
	}
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct {
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://example.test/" + *in.Bucket + "/" + *in.Key + "?X-Amz-Signature=sig"}, nil
}

func storageConfig(t config.StorageType) config.StorageConfig {
	endpoint := "https://acct.r2.cloudflarestorage.com"
	return config.StorageConfig{
		Type:      t,
		Endpoint:  &endpoint,
		AccessKey: "AKID",
		SecretKey: "SECRET",
		Bucket:    "backups",
	}
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) *Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c, err := NewR2(storageConfig(config.StorageR2), logger, append([]Option{WithAPI(api)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewR2RequiresEndpoint(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := storageConfig(config.StorageR2)
	cfg.Endpoint = nil

	_, err := NewR2(cfg, logger, WithAPI(newFakeAPI()))
	require.Error(t, err)
	assert.True(t, backuperr.IsKind(err, backuperr.KindStrategyConfiguration))
	assert.Contains(t, err.Error(), "endpoint")
}

func TestNewValidatesRequiredFields(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := storageConfig(config.StorageS3)
	cfg.Bucket = ""

	_, err := NewS3(cfg, logger, WithAPI(newFakeAPI()))
	assert.ErrorContains(t, err, "missing required field: bucket")
}

func TestRegionDefaults(t *testing.T) {
	logger, _ := test.NewNullLogger()

	r2, err := NewR2(storageConfig(config.StorageR2), logger, WithAPI(newFakeAPI()))
	require.NoError(t, err)
	assert.Equal(t, "auto", r2.Info()["region"])

	s3c, err := NewS3(storageConfig(config.StorageS3), logger, WithAPI(newFakeAPI()))
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", s3c.Info()["region"])
}

func TestNewBuildsSDKClient(t *testing.T) {
	logger, _ := test.NewNullLogger()

	c, err := NewS3(storageConfig(config.StorageS3), logger)
	require.NoError(t, err)
	assert.IsType(t, &s3.Client{}, c.api)
	assert.NotNil(t, c.presigner)
}

func TestNewRejectsUnreadableCA(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := storageConfig(config.StorageS3)
	cfg.StorageOptions = map[string]any{"custom_ca": filepath.Join(t.TempDir(), "missing.pem")}

	_, err := NewS3(cfg, logger)
	assert.ErrorContains(t, err, "failed to read custom CA certificate")
}

func TestTestConnection(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	require.NoError(t, c.TestConnection(context.Background()))
	assert.Equal(t, 1, api.lists)
}

func TestTestConnectionMapsErrorCodes(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	api.listErr = &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "nope"}
	assert.EqualError(t, c.TestConnection(context.Background()), "bucket does not exist: backups")

	api.listErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	assert.ErrorContains(t, c.TestConnection(context.Background()), "access denied")

	api.listErr = errors.New("dial tcp: timeout")
	assert.ErrorContains(t, c.TestConnection(context.Background()), "connection test failed")
}

func TestUploadFile(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	local := filepath.Join(t.TempDir(), "dump.sql.gz")
	require.NoError(t, os.WriteFile(local, []byte("payload"), 0600))

	result, err := c.UploadFile(context.Background(), local, "prod/dump.sql.gz", map[string]string{"strategy_id": "s1"})
	require.NoError(t, err)
	assert.Equal(t, "prod/dump.sql.gz", result.Key)
	assert.Equal(t, "r2://backups/prod/dump.sql.gz", result.Location)
	assert.Equal(t, int64(7), result.SizeBytes)
	assert.Equal(t, "abc123", result.ETag)

	stored := api.objects["prod/dump.sql.gz"]
	assert.Equal(t, "payload", string(stored.body))
	assert.Equal(t, "s1", stored.metadata["strategy_id"])
}

func TestUploadFileMissingLocal(t *testing.T) {
	c := newTestClient(t, newFakeAPI())

	_, err := c.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope"), "k", nil)
	assert.ErrorContains(t, err, "local file does not exist")
}

func TestListFilesFollowsPages(t *testing.T) {
	api := newFakeAPI()
	now := time.Now()
	for _, k := range []string{"a/1", "a/2", "a/3", "a/4", "a/5", "b/1"} {
		api.objects[k] = fakeObject{body: []byte(k), modified: now}
	}
	c := newTestClient(t, api)

	objects, err := c.ListFiles(context.Background(), "a/")
	require.NoError(t, err)
	require.Len(t, objects, 5)
	assert.Equal(t, "a/5", objects[4].Key)
	assert.Equal(t, "etag-a/1", objects[0].ETag)
	assert.Equal(t, 3, api.lists)
}

func TestCleanupOldFiles(t *testing.T) {
	api := newFakeAPI()
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	api.objects["prod/old.sql"] = fakeObject{modified: now.Add(-31 * 24 * time.Hour)}
	api.objects["prod/older.sql"] = fakeObject{modified: now.Add(-90 * 24 * time.Hour)}
	api.objects["prod/new.sql"] = fakeObject{modified: now.Add(-29 * 24 * time.Hour)}
	api.objects["other/old.sql"] = fakeObject{modified: now.Add(-90 * 24 * time.Hour)}
	api.deleteErr["prod/older.sql"] = errors.New("locked")

	c := newTestClient(t, api, WithClock(func() time.Time { return now }))

	deleted, err := c.CleanupOldFiles(context.Background(), 30, "prod")
	require.NoError(t, err)
	assert.Equal(t, []string{"prod/old.sql"}, deleted)
	assert.Contains(t, api.objects, "prod/new.sql")
	assert.Contains(t, api.objects, "prod/older.sql")
	assert.Contains(t, api.objects, "other/old.sql")
}

func TestCleanupOldFilesDisabled(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	deleted, err := c.CleanupOldFiles(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Empty(t, deleted)
	assert.Zero(t, api.lists)
}

func TestGeneratePresignedURL(t *testing.T) {
	presigner := &fakePresigner{}
	c := newTestClient(t, newFakeAPI(), WithPresigner(presigner))

	url, err := c.GeneratePresignedURL(context.Background(), "prod/dump.sql.gz", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/backups/prod/dump.sql.gz?X-Amz-Signature=sig", url)
	assert.Equal(t, 15*time.Minute, presigner.expires)
}

func TestInfoOmitsCredentials(t *testing.T) {
	c := newTestClient(t, newFakeAPI())

	info := c.Info()
	assert.Equal(t, "backups", info["bucket"])
	for _, v := range info {
		if s, ok := v.(string); ok {
			assert.NotContains(t, s, "SECRET")
		}
	}
}

var _ common.Adapter = (*Client)(nil)

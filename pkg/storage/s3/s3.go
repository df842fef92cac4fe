// Package s3 implements the storage adapter for Amazon S3, Cloudflare R2 and
// other S3-compatible object stores.
package s3

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/supporttools/BackupFlow/pkg/backuperr"
	"github.com/supporttools/BackupFlow/pkg/config"
	"github.com/supporttools/BackupFlow/pkg/metrics"
	"github.com/supporttools/BackupFlow/pkg/storage/common"
)

// API is the subset of the S3 client used by the adapter
type API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner creates presigned download requests
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Client is a storage adapter backed by an S3 API
type Client struct {
	cfg       config.StorageConfig
	log       logrus.FieldLogger
	api       API
	presigner Presigner
	now       func() time.Time
}

// Option customizes a Client
type Option func(*Client)

// WithAPI replaces the SDK client, used by tests
func WithAPI(api API) Option {
	return func(c *Client) { c.api = api }
}

// WithPresigner replaces the SDK presign client
func WithPresigner(p Presigner) Option {
	return func(c *Client) { c.presigner = p }
}

// WithClock replaces time.Now for retention calculations
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewR2 creates a Cloudflare R2 adapter. R2 requires an endpoint.
func NewR2(cfg config.StorageConfig, log logrus.FieldLogger, opts ...Option) (*Client, error) {
	if cfg.EndpointOrEmpty() == "" {
		return nil, backuperr.StrategyConfiguration(nil, "R2 storage configuration missing required field: endpoint")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	return newClient(cfg, log, opts...)
}

// NewS3 creates an Amazon S3 or S3-compatible adapter
func NewS3(cfg config.StorageConfig, log logrus.FieldLogger, opts ...Option) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return newClient(cfg, log, opts...)
}

func newClient(cfg config.StorageConfig, log logrus.FieldLogger, opts ...Option) (*Client, error) {
	for field, value := range map[string]string{
		"access_key": cfg.AccessKey,
		"secret_key": cfg.SecretKey,
		"bucket":     cfg.Bucket,
	} {
		if value == "" {
			return nil, backuperr.StrategyConfiguration(nil, "%s storage configuration missing required field: %s", cfg.Type, field)
		}
	}

	c := &Client{
		cfg: cfg,
		log: log.WithFields(logrus.Fields{"storage_type": cfg.Type, "bucket": cfg.Bucket}),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.api == nil {
		sdk, err := newSDKClient(cfg, c.log)
		if err != nil {
			return nil, backuperr.StrategyConfiguration(err, "%s client initialization failed", cfg.Type)
		}
		c.api = sdk
		if c.presigner == nil {
			c.presigner = s3.NewPresignClient(sdk)
		}
	}

	c.log.WithField("region", cfg.Region).Debug("Storage client initialized")
	return c, nil
}

// newSDKClient builds the aws-sdk-go-v2 client from static credentials.
// Storage options: custom_ca (PEM path), insecure_skip_verify, path_style.
func newSDKClient(cfg config.StorageConfig, log logrus.FieldLogger) (*s3.Client, error) {
	httpClient, err := httpClientFor(cfg, log)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("AWS SDK config initialization error: %w", err)
	}

	pathStyle := optionBool(cfg.StorageOptions, "path_style", true)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if endpoint := cfg.EndpointOrEmpty(); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func httpClientFor(cfg config.StorageConfig, log logrus.FieldLogger) (*http.Client, error) {
	httpClient := &http.Client{}

	caPath, _ := cfg.StorageOptions["custom_ca"].(string)
	skipVerify := optionBool(cfg.StorageOptions, "insecure_skip_verify", false)
	if caPath == "" && !skipVerify {
		return httpClient, nil
	}

	tlsConfig := &tls.Config{}
	if caPath != "" && !skipVerify {
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		caCert, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read custom CA certificate: %w", err)
		}
		if ok := rootCAs.AppendCertsFromPEM(caCert); !ok {
			return nil, errors.New("failed to append custom CA certificate")
		}
		tlsConfig.RootCAs = rootCAs
		log.WithField("ca", caPath).Info("Using custom CA certificate")
	}
	if skipVerify {
		tlsConfig.InsecureSkipVerify = true
		log.Warn("TLS certificate validation is disabled for storage connections")
	}

	httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	return httpClient, nil
}

func optionBool(options map[string]any, key string, def bool) bool {
	switch v := options[key].(type) {
	case bool:
		return v
	case string:
		if v == "" {
			return def
		}
		return config.ParseFlag(v)
	default:
		return def
	}
}

// TestConnection lists at most one object in the bucket
func (c *Client) TestConnection(ctx context.Context) error {
	c.log.Info("Testing storage connection...")

	_, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.cfg.Bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchBucket":
				return fmt.Errorf("bucket does not exist: %s", c.cfg.Bucket)
			case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
				return fmt.Errorf("access denied, please check access keys: %w", err)
			}
		}
		return fmt.Errorf("connection test failed: %w", err)
	}

	c.log.Info("Storage connection test successful")
	return nil
}

// UploadFile uploads localPath to remotePath with user metadata
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string, metadata map[string]string) (*common.UploadResult, error) {
	start := c.now()
	storageType := string(c.cfg.Type)

	file, err := os.Open(localPath)
	if err != nil {
		metrics.UploadCount.WithLabelValues(storageType, "error").Inc()
		return nil, fmt.Errorf("local file does not exist: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		metrics.UploadCount.WithLabelValues(storageType, "error").Inc()
		return nil, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	c.log.WithFields(logrus.Fields{
		"key":  remotePath,
		"size": humanize.Bytes(uint64(info.Size())),
	}).Info("Uploading file")

	out, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(remotePath),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		Metadata:      metadata,
	})
	if err != nil {
		metrics.UploadCount.WithLabelValues(storageType, "error").Inc()
		return nil, fmt.Errorf("%s file upload failed: %w", c.cfg.Type, err)
	}

	duration := c.now().Sub(start)
	metrics.UploadCount.WithLabelValues(storageType, "success").Inc()
	metrics.UploadDuration.WithLabelValues(storageType).Observe(duration.Seconds())

	result := &common.UploadResult{
		Key:       remotePath,
		Location:  c.location(remotePath),
		SizeBytes: info.Size(),
		Duration:  duration,
	}
	if out != nil && out.ETag != nil {
		result.ETag = strings.Trim(*out.ETag, `"`)
	}

	c.log.WithFields(logrus.Fields{
		"key":      remotePath,
		"duration": duration.String(),
	}).Info("File upload completed")
	return result, nil
}

func (c *Client) location(key string) string {
	return fmt.Sprintf("%s://%s/%s", c.cfg.Type, c.cfg.Bucket, key)
}

// ListFiles returns every object under prefix
func (c *Client) ListFiles(ctx context.Context, prefix string) ([]common.Object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(c.cfg.Bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []common.Object
	paginator := s3.NewListObjectsV2Paginator(c.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, common.Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			})
		}
	}
	return objects, nil
}

// DeleteFile removes one object
func (c *Client) DeleteFile(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// CleanupOldFiles deletes objects under prefix last modified more than
// retentionDays ago. Objects that fail to delete are logged and skipped.
func (c *Client) CleanupOldFiles(ctx context.Context, retentionDays int, prefix string) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}

	c.log.WithFields(logrus.Fields{
		"retention_days": retentionDays,
		"prefix":         prefix,
	}).Info("Cleaning up old files")

	objects, err := c.ListFiles(ctx, prefix)
	if err != nil {
		return nil, err
	}

	cutoff := c.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	var deleted []string
	for _, obj := range objects {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := c.DeleteFile(ctx, obj.Key); err != nil {
			c.log.WithError(err).WithField("key", obj.Key).Warn("Failed to delete expired backup")
			continue
		}
		deleted = append(deleted, obj.Key)
		metrics.RetentionDeletes.WithLabelValues(string(c.cfg.Type)).Inc()
		c.log.WithFields(logrus.Fields{
			"key": obj.Key,
			"age": humanize.RelTime(obj.LastModified, c.now(), "old", "from now"),
		}).Debug("Deleted old file")
	}

	c.log.WithField("deleted", len(deleted)).Info("Cleanup completed")
	return deleted, nil
}

// Info describes the storage target without credentials
func (c *Client) Info() map[string]any {
	return map[string]any{
		"type":     c.cfg.Type,
		"bucket":   c.cfg.Bucket,
		"region":   c.cfg.Region,
		"endpoint": c.cfg.EndpointOrEmpty(),
		"prefix":   c.cfg.PrefixOrEmpty(),
	}
}

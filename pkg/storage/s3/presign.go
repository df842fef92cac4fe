package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// GeneratePresignedURL creates a presigned URL for downloading an object
func (c *Client) GeneratePresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if c.presigner == nil {
		return "", errors.New("presigning is not available for this client")
	}

	result, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(objectKey),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	c.log.WithField("key", objectKey).WithField("expires_in", expiry.String()).Info("Generated presigned URL")
	return result.URL, nil
}

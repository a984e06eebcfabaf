package legacy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// SpacesConfig locates an export object in DigitalOcean Spaces (or any S3
// compatible store)
type SpacesConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	Key       string
	AccessKey string
	SecretKey string
}

// NewSpacesClient builds an S3 client for the Spaces endpoint
func NewSpacesClient(cfg SpacesConfig) (s3iface.S3API, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(false),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create spaces session: %w", err)
	}
	return s3.New(sess), nil
}

// LoadSpacesExport downloads the export object and decodes it.
func LoadSpacesExport(ctx context.Context, client s3iface.S3API, bucket, key string) (*ExportReader, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("spaces bucket and export key are required")
	}
	out, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download legacy export s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return DecodeExport(out.Body)
}

package repository

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/config"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Exporter uploads exported records to an S3 compatible bucket.
type S3Exporter struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Exporter builds an exporter from the default AWS credential chain.
// Endpoint and PathStyle allow MinIO and similar services.
func NewS3Exporter(ctx context.Context, cfg config.S3Config) (*S3Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Exporter{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key is the object key a record is uploaded under.
func (e *S3Exporter) Key(rec *models.SessionRecord) string {
	return path.Join(e.prefix, rec.FileName())
}

func (e *S3Exporter) Save(ctx context.Context, rec *models.SessionRecord) error {
	data, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(e.Key(rec)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"session":  rec.ID,
			"initials": rec.Initials,
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", e.Key(rec), err)
	}
	return nil
}

package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"hcahps/internal/common"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

// ObjectGetter is the part of the S3 client the opener needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Opener resolves an input location to a readable stream.
type Opener struct {
	cfg    models.Source
	client ObjectGetter
}

// NewOpener creates an opener. The S3 client is created lazily on the first
// s3:// location unless one is injected with WithClient.
func NewOpener(cfg models.Source) *Opener {
	return &Opener{cfg: cfg}
}

// WithClient injects an S3 client
func (o *Opener) WithClient(client ObjectGetter) *Opener {
	o.client = client
	return o
}

// Open returns the content at location: a local path or s3://bucket/key.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if location == "" {
		return nil, apperrors.New(apperrors.ErrCodeSourceLocation, "no input location given").
			WithSuggestions("Pass a CSV path or set input.path in config.yaml")
	}

	if strings.HasPrefix(location, "s3://") {
		bucket, key, ok := parseS3(location)
		if !ok {
			return nil, apperrors.New(apperrors.ErrCodeSourceLocation, "malformed S3 location").
				WithContext("location", location).
				WithSuggestions("Use the form s3://bucket/path/to/export.csv")
		}
		return o.openS3(ctx, bucket, key)
	}

	path, err := common.CleanPath(location)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSourceLocation, "invalid input path").
			WithContext("path", location)
	}
	f, err := os.Open(path) // #nosec G304 - path is validated
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSourceUnreadable, "failed to open input file").
			WithContext("path", path)
	}
	return f, nil
}

// Load opens location and reads every row from it.
func (o *Opener) Load(ctx context.Context, location string) ([]models.RawObservation, error) {
	rc, err := o.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return ReadCSV(rc)
}

func (o *Opener) openS3(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if o.client == nil {
		client, err := newS3Client(ctx, o.cfg)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeSourceUnreadable, "failed to configure S3 client")
		}
		o.client = client
	}

	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSourceUnreadable, "failed to fetch input object").
			WithContext("bucket", bucket).
			WithContext("key", key).
			WithSuggestions("Check AWS credentials and the object location")
	}
	return out.Body, nil
}

func newS3Client(ctx context.Context, cfg models.Source) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func parseS3(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// Describe renders a location for logs.
func Describe(location string) string {
	if bucket, key, ok := parseS3(location); ok {
		return fmt.Sprintf("s3 bucket=%s key=%s", bucket, key)
	}
	return "file " + location
}

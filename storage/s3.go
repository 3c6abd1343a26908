// Package storage archives finished posters in an S3 bucket.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/rs/zerolog"

	"posterpro/common"
)

const pptxContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// S3Archiver uploads posters under posters/<date>/<filename>
type S3Archiver struct {
	Bucket   string
	Prefix   string
	uploader s3manageriface.UploaderAPI
	log      zerolog.Logger
	now      func() time.Time
}

// NewS3Archiver creates an archiver using the default credential chain
func NewS3Archiver(bucket, region string, logger zerolog.Logger) (*S3Archiver, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, common.ConfigError("create AWS session", err)
	}
	return newS3Archiver(bucket, s3manager.NewUploader(sess), logger), nil
}

func newS3Archiver(bucket string, uploader s3manageriface.UploaderAPI, logger zerolog.Logger) *S3Archiver {
	return &S3Archiver{
		Bucket:   bucket,
		Prefix:   "posters",
		uploader: uploader,
		log:      logger.With().Str("component", "archive").Str("bucket", bucket).Logger(),
		now:      time.Now,
	}
}

// Key is the object key a poster is stored under
func (a *S3Archiver) Key(filename string) string {
	return path.Join(a.Prefix, a.now().UTC().Format("2006-01-02"), filepath.Base(filename))
}

// Archive uploads the file at p and returns its location
func (a *S3Archiver) Archive(ctx context.Context, p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", common.IOError("open poster for archive", err)
	}
	defer f.Close()

	key := a.Key(p)
	out, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(pptxContentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to s3://%s: %w", key, a.Bucket, err)
	}
	a.log.Info().Str("key", key).Msg("poster archived")
	return out.Location, nil
}

package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const archiveContentType = "application/gzip"

// S3Device implements StorageDevice for Amazon S3 and S3-compatible stores
type S3Device struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewS3Device creates a new S3Device instance
func NewS3Device(config *S3Config) (*S3Device, error) {
	if config == nil {
		return nil, NewValidationError("S3 storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid S3 storage configuration", err)
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"", // token
		)
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	return newS3DeviceWithClient(s3.New(sess), config.Bucket, config.Prefix), nil
}

func newS3DeviceWithClient(client s3iface.S3API, bucket, prefix string) *S3Device {
	return &S3Device{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Path maps a key to an object key below the configured prefix
func (s3d *S3Device) Path(key string) string {
	return objectKey(s3d.prefix, key)
}

// Move uploads localPath to the object at locator and removes the local file
func (s3d *S3Device) Move(ctx context.Context, localPath, locator string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return NewStorageError("failed to open local archive", err)
	}

	_, err = s3d.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3d.bucket),
		Key:         aws.String(locator),
		Body:        file,
		ContentType: aws.String(archiveContentType),
	})
	file.Close()
	if err != nil {
		return NewStorageError(fmt.Sprintf("failed to upload %s to s3://%s/%s", localPath, s3d.bucket, locator), err)
	}

	if err := os.Remove(localPath); err != nil {
		return NewStorageError("failed to remove local archive after upload", err)
	}
	return nil
}

// Read downloads the object at locator
func (s3d *S3Device) Read(ctx context.Context, locator string) ([]byte, error) {
	result, err := s3d.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3d.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("archive s3://%s/%s not found", s3d.bucket, locator), err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to download s3://%s/%s", s3d.bucket, locator), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, NewStorageError("failed to read archive data", err)
	}
	return data, nil
}

// Write uploads data to the object at locator
func (s3d *S3Device) Write(ctx context.Context, locator string, data []byte) error {
	_, err := s3d.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3d.bucket),
		Key:         aws.String(locator),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(archiveContentType),
	})
	if err != nil {
		return NewStorageError(fmt.Sprintf("failed to upload s3://%s/%s", s3d.bucket, locator), err)
	}
	return nil
}

// Delete removes the object at locator
func (s3d *S3Device) Delete(ctx context.Context, locator string) error {
	_, err := s3d.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3d.bucket),
		Key:    aws.String(locator),
	})
	if err != nil && !isS3NotFound(err) {
		return NewStorageError(fmt.Sprintf("failed to delete s3://%s/%s", s3d.bucket, locator), err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

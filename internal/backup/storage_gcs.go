package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSDevice implements StorageDevice for Google Cloud Storage
type GCSDevice struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSDevice creates a new GCSDevice instance
func NewGCSDevice(ctx context.Context, config *GCSConfig) (*GCSDevice, error) {
	if config == nil {
		return nil, NewValidationError("GCS storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid GCS storage configuration", err)
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	// Without a credentials file the client falls back to application default credentials
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	return &GCSDevice{
		client:     client,
		bucketName: config.Bucket,
		prefix:     config.Prefix,
	}, nil
}

// Path maps a key to an object name below the configured prefix
func (gd *GCSDevice) Path(key string) string {
	return objectKey(gd.prefix, key)
}

// Move uploads localPath to the object at locator and removes the local file
func (gd *GCSDevice) Move(ctx context.Context, localPath, locator string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return NewStorageError("failed to open local archive", err)
	}
	defer file.Close()

	if err := gd.upload(ctx, locator, file); err != nil {
		return err
	}

	if err := os.Remove(localPath); err != nil {
		return NewStorageError("failed to remove local archive after upload", err)
	}
	return nil
}

// Read downloads the object at locator
func (gd *GCSDevice) Read(ctx context.Context, locator string) ([]byte, error) {
	reader, err := gd.client.Bucket(gd.bucketName).Object(locator).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, NewNotFoundError(fmt.Sprintf("archive gs://%s/%s not found", gd.bucketName, locator), err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to download gs://%s/%s", gd.bucketName, locator), err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewStorageError("failed to read archive data", err)
	}
	return data, nil
}

// Write uploads data to the object at locator
func (gd *GCSDevice) Write(ctx context.Context, locator string, data []byte) error {
	return gd.upload(ctx, locator, bytes.NewReader(data))
}

// Delete removes the object at locator
func (gd *GCSDevice) Delete(ctx context.Context, locator string) error {
	err := gd.client.Bucket(gd.bucketName).Object(locator).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return NewStorageError(fmt.Sprintf("failed to delete gs://%s/%s", gd.bucketName, locator), err)
	}
	return nil
}

func (gd *GCSDevice) upload(ctx context.Context, locator string, r io.Reader) error {
	writer := gd.client.Bucket(gd.bucketName).Object(locator).NewWriter(ctx)
	writer.ContentType = archiveContentType

	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return NewStorageError(fmt.Sprintf("failed to upload gs://%s/%s", gd.bucketName, locator), err)
	}
	if err := writer.Close(); err != nil {
		return NewStorageError(fmt.Sprintf("failed to finalize gs://%s/%s", gd.bucketName, locator), err)
	}
	return nil
}

// Close closes the GCS client
func (gd *GCSDevice) Close() error {
	return gd.client.Close()
}

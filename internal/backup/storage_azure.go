package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureDevice implements StorageDevice for Azure Blob Storage
type AzureDevice struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
}

// NewAzureDevice creates a new AzureDevice instance
func NewAzureDevice(config *AzureConfig) (*AzureDevice, error) {
	if config == nil {
		return nil, NewValidationError("Azure storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid Azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewStorageError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureDevice{
		containerURL:  azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		containerName: config.ContainerName,
		prefix:        config.Prefix,
	}, nil
}

// Path maps a key to a blob name below the configured prefix
func (ad *AzureDevice) Path(key string) string {
	return objectKey(ad.prefix, key)
}

// Move uploads localPath to the blob at locator and removes the local file
func (ad *AzureDevice) Move(ctx context.Context, localPath, locator string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return NewStorageError("failed to open local archive", err)
	}

	_, err = azblob.UploadFileToBlockBlob(ctx, file, ad.containerURL.NewBlockBlobURL(locator), azblob.UploadToBlockBlobOptions{
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: archiveContentType},
	})
	file.Close()
	if err != nil {
		return NewStorageError(fmt.Sprintf("failed to upload %s to container %s", locator, ad.containerName), err)
	}

	if err := os.Remove(localPath); err != nil {
		return NewStorageError("failed to remove local archive after upload", err)
	}
	return nil
}

// Read downloads the blob at locator
func (ad *AzureDevice) Read(ctx context.Context, locator string) ([]byte, error) {
	blobURL := ad.containerURL.NewBlockBlobURL(locator)

	downloadResponse, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("archive %s not found in container %s", locator, ad.containerName), err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to download %s from container %s", locator, ad.containerName), err)
	}

	bodyStream := downloadResponse.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20})
	defer bodyStream.Close()

	data, err := io.ReadAll(bodyStream)
	if err != nil {
		return nil, NewStorageError("failed to read archive data", err)
	}
	return data, nil
}

// Write uploads data to the blob at locator
func (ad *AzureDevice) Write(ctx context.Context, locator string, data []byte) error {
	_, err := azblob.UploadBufferToBlockBlob(ctx, data, ad.containerURL.NewBlockBlobURL(locator), azblob.UploadToBlockBlobOptions{
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: archiveContentType},
	})
	if err != nil {
		return NewStorageError(fmt.Sprintf("failed to upload %s to container %s", locator, ad.containerName), err)
	}
	return nil
}

// Delete removes the blob at locator
func (ad *AzureDevice) Delete(ctx context.Context, locator string) error {
	blobURL := ad.containerURL.NewBlockBlobURL(locator)
	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil && !isAzureNotFound(err) {
		return NewStorageError(fmt.Sprintf("failed to delete %s from container %s", locator, ad.containerName), err)
	}
	return nil
}

// GetContainerName returns the container name
func (ad *AzureDevice) GetContainerName() string {
	return ad.containerName
}

func isAzureNotFound(err error) bool {
	var stgErr azblob.StorageError
	if errors.As(err, &stgErr) {
		return stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}

package backup

import (
	"context"
	"fmt"
)

// StorageDeviceFactory creates storage devices based on configuration
type StorageDeviceFactory struct{}

// NewStorageDeviceFactory creates a new storage device factory
func NewStorageDeviceFactory() *StorageDeviceFactory {
	return &StorageDeviceFactory{}
}

// CreateStorageDevice creates the durable device selected by config.Provider
func (sdf *StorageDeviceFactory) CreateStorageDevice(ctx context.Context, config StorageConfig) (StorageDevice, error) {
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid storage configuration", err)
	}

	switch config.Provider {
	case StorageProviderLocal:
		return NewLocalDevice(config.Local)

	case StorageProviderS3:
		return NewS3Device(config.S3)

	case StorageProviderAzure:
		return NewAzureDevice(config.Azure)

	case StorageProviderGCS:
		return NewGCSDevice(ctx, config.GCS)

	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
	}
}

// GetSupportedProviders returns a list of supported storage provider types
func (sdf *StorageDeviceFactory) GetSupportedProviders() []StorageProviderType {
	return []StorageProviderType{
		StorageProviderLocal,
		StorageProviderS3,
		StorageProviderAzure,
		StorageProviderGCS,
	}
}

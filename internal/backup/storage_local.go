package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
)

// LocalDevice implements StorageDevice on the local file system. It serves
// both as the durable device for single-host installs and as the staging
// device the restore pipeline writes downloaded archives to.
type LocalDevice struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalDevice creates a new LocalDevice instance
func NewLocalDevice(config *LocalConfig) (*LocalDevice, error) {
	if config == nil {
		return nil, NewValidationError("local storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid local storage configuration", err)
	}

	base, err := filepath.Abs(config.BasePath)
	if err != nil {
		return nil, NewStorageError("failed to resolve base path", err)
	}

	device := &LocalDevice{
		basePath:    base,
		permissions: config.Permissions,
	}

	if err := os.MkdirAll(device.basePath, device.permissions); err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to create base directory %s", device.basePath), err)
	}

	return device, nil
}

// Path maps a key to a file below the base directory
func (ld *LocalDevice) Path(key string) string {
	return filepath.Join(ld.basePath, filepath.FromSlash(sanitizeKey(key)))
}

// Move renames localPath to locator, copying across file systems when a
// rename is not possible.
func (ld *LocalDevice) Move(ctx context.Context, localPath, locator string) error {
	if err := ld.checkLocator(locator); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(locator), ld.permissions); err != nil {
		return NewStorageError("failed to create target directory", err)
	}

	err := os.Rename(localPath, locator)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return NewStorageError(fmt.Sprintf("failed to move %s to %s", localPath, locator), err)
	}

	if err := copyFile(localPath, locator); err != nil {
		return NewStorageError(fmt.Sprintf("failed to copy %s to %s", localPath, locator), err)
	}
	if err := os.Remove(localPath); err != nil {
		return NewStorageError("failed to remove source after copy", err)
	}
	return nil
}

// Read returns the contents stored at locator
func (ld *LocalDevice) Read(ctx context.Context, locator string) ([]byte, error) {
	if err := ld.checkLocator(locator); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(locator)
	if errors.Is(err, os.ErrNotExist) {
		return nil, NewNotFoundError(fmt.Sprintf("archive %s not found", locator), err)
	}
	if err != nil {
		return nil, NewStorageError("failed to read archive", err)
	}
	return data, nil
}

// Write stores data at locator, replacing any existing file atomically
func (ld *LocalDevice) Write(ctx context.Context, locator string, data []byte) error {
	if err := ld.checkLocator(locator); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(locator), ld.permissions); err != nil {
		return NewStorageError("failed to create target directory", err)
	}

	tmp := locator + ".partial"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return NewStorageError("failed to write file", err)
	}
	if err := os.Rename(tmp, locator); err != nil {
		os.Remove(tmp)
		return NewStorageError("failed to finalize file", err)
	}
	return nil
}

// Delete removes the file at locator. A missing file is not an error.
func (ld *LocalDevice) Delete(ctx context.Context, locator string) error {
	if err := ld.checkLocator(locator); err != nil {
		return err
	}
	if err := os.Remove(locator); err != nil && !errors.Is(err, os.ErrNotExist) {
		return NewStorageError("failed to delete file", err)
	}
	return nil
}

// GetBasePath returns the base path for the device
func (ld *LocalDevice) GetBasePath() string {
	return ld.basePath
}

// checkLocator refuses locators that escape the base directory
func (ld *LocalDevice) checkLocator(locator string) error {
	cleaned := filepath.Clean(locator)
	if cleaned == ld.basePath || !strings.HasPrefix(cleaned, ld.basePath+string(filepath.Separator)) {
		return NewValidationError(fmt.Sprintf("locator %s is outside %s", locator, ld.basePath), nil)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// sanitizeKey normalises a storage key so it cannot climb out of the device
// root: separators become '/', dot segments are resolved and the leading
// slash is dropped.
func sanitizeKey(key string) string {
	key = strings.ReplaceAll(key, `\`, "/")
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}

// objectKey joins a remote prefix and a sanitized key
func objectKey(prefix, key string) string {
	key = sanitizeKey(key)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

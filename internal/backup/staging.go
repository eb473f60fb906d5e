package backup

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultStagingRoot is where per-job scratch directories are created
const DefaultStagingRoot = "/tmp/backups"

// StagingArea hands out job-scoped scratch directories under a root
type StagingArea struct {
	root string
	perm os.FileMode
}

// NewStagingArea creates a staging area rooted at root
func NewStagingArea(root string) *StagingArea {
	if root == "" {
		root = DefaultStagingRoot
	}
	return &StagingArea{root: root, perm: 0o750}
}

// Root returns the staging root directory
func (sa *StagingArea) Root() string {
	return sa.root
}

// StagingDir is one acquired job directory
type StagingDir struct {
	path string
}

// Acquire creates {root}/{jobID}. Distinct job ids never share a directory.
func (sa *StagingArea) Acquire(jobID string) (*StagingDir, error) {
	if !ValidJobID(jobID) {
		return nil, NewValidationError(fmt.Sprintf("invalid job id %q", jobID), nil)
	}

	dir := filepath.Join(sa.root, jobID)
	if err := os.MkdirAll(dir, sa.perm); err != nil {
		return nil, NewIOError("failed to create staging directory", err).
			WithContext("path", dir)
	}
	return &StagingDir{path: dir}, nil
}

// Path returns the staging directory
func (sd *StagingDir) Path() string {
	return sd.path
}

// File returns the path of name inside the staging directory
func (sd *StagingDir) File(name string) string {
	return filepath.Join(sd.path, name)
}

// Release removes the directory and everything in it
func (sd *StagingDir) Release() error {
	if err := os.RemoveAll(sd.path); err != nil {
		return NewIOError("failed to remove staging directory", err).
			WithContext("path", sd.path)
	}
	return nil
}

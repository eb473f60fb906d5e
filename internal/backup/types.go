package backup

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// JobType is the kind of work a job record describes
type JobType string

const (
	JobTypeBackup  JobType = "backup"
	JobTypeRestore JobType = "restore"
)

// Valid reports whether t is a known job type
func (t JobType) Valid() bool {
	return t == JobTypeBackup || t == JobTypeRestore
}

// ParseJobType converts a stored or received string into a JobType
func ParseJobType(s string) (JobType, error) {
	t := JobType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", NewValidationError(fmt.Sprintf("unknown job type %q", s), nil)
	}
	return t, nil
}

// JobStatus is the lifecycle state of a job record
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is a known job status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ParseJobStatus converts a stored string into a JobStatus
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", NewValidationError(fmt.Sprintf("unknown job status %q", s), nil)
	}
	return status, nil
}

var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusProcessing, JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether the edge from -> to is allowed
func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is the persistent record tracking one backup or restore request
type Job struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Type        JobType   `json:"type"`
	Status      JobStatus `json:"status"`
	ArchivePath string    `json:"path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Transition moves the job to status to, refusing edges out of terminal states
func (j *Job) Transition(to JobStatus) error {
	if !to.Valid() {
		return NewValidationError(fmt.Sprintf("unknown job status %q", to), nil)
	}
	if !CanTransition(j.Status, to) {
		return NewInvalidStateError(
			fmt.Sprintf("job %s cannot move from %s to %s", j.ID, j.Status, to), nil).
			WithContext("job_id", j.ID).
			WithContext("from", string(j.Status)).
			WithContext("to", string(to))
	}
	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Precondition is the stored state an update expects to replace. A zero
// UpdatedAt matches any timestamp.
type Precondition struct {
	Status    JobStatus
	UpdatedAt time.Time
}

// Expect returns a precondition matching the job's current status
func (j *Job) Expect() Precondition {
	return Precondition{Status: j.Status}
}

// ExpectExact returns a precondition matching both status and updated_at
func (j *Job) ExpectExact() Precondition {
	return Precondition{Status: j.Status, UpdatedAt: j.UpdatedAt}
}

// SetArchivePath records where the archive for this job lives. Once set the
// path cannot be replaced by a different value.
func (j *Job) SetArchivePath(path string) error {
	if path == "" {
		return NewValidationError("archive path cannot be empty", nil)
	}
	if j.ArchivePath != "" && j.ArchivePath != path {
		return NewInvalidStateError(
			fmt.Sprintf("job %s already has archive %s", j.ID, j.ArchivePath), nil)
	}
	j.ArchivePath = path
	return nil
}

// Validate validates a job loaded from the store
func (j *Job) Validate() error {
	var errors ValidationErrors

	if j.ID == "" {
		errors.Add("id", "job ID is required", j.ID)
	}
	if !j.Type.Valid() {
		errors.Add("type", "unknown job type", j.Type)
	}
	if !j.Status.Valid() {
		errors.Add("status", "unknown job status", j.Status)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// ArchiveName returns the archive file name for a job id
func ArchiveName(jobID string) string {
	return jobID + ".tar.gz"
}

// DumpName returns the SQL dump file name for a job id
func DumpName(jobID string) string {
	return jobID + ".sql"
}

// MemberNameFor derives the dump member stored inside an archive from the
// archive's name.
func MemberNameFor(archiveName string) string {
	base := archiveName
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".tar.gz")
	base = strings.TrimSuffix(base, ".tgz")
	return base + ".sql"
}

// ConnectionConfig holds the parameters the external dump and apply tools
// need to reach a tenant schema.
type ConnectionConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Schema   string `yaml:"schema" mapstructure:"schema"`
}

// Validate validates the ConnectionConfig struct
func (c *ConnectionConfig) Validate() error {
	var errors ValidationErrors

	if c.Host == "" {
		errors.Add("host", "database host is required", c.Host)
	}
	if c.Port <= 0 || c.Port > 65535 {
		errors.Add("port", "database port must be between 1 and 65535", c.Port)
	}
	if c.Username == "" {
		errors.Add("username", "database username is required", c.Username)
	}
	if c.Schema == "" {
		errors.Add("schema", "database schema is required", c.Schema)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// Tenant is the resolved context of one project: its namespace prefix and
// the connection to the schema holding its tables.
type Tenant struct {
	ID         string
	InternalID string
	Namespace  string
	Database   ConnectionConfig
}

// NamespaceFor builds the table prefix for a tenant internal id
func NamespaceFor(internalID string) string {
	return "_" + internalID
}

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	jobIDPattern      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)
)

// ValidIdentifier reports whether s is safe to splice into SQL or a tool
// argument as a table or namespace name.
func ValidIdentifier(s string) bool {
	return s != "" && len(s) <= 64 && identifierPattern.MatchString(s)
}

// ValidJobID reports whether id can be used as a file and object name
func ValidJobID(id string) bool {
	return jobIDPattern.MatchString(id)
}

// Payload is the job-specific part of a queue message
type Payload struct {
	Type     string `json:"type"`
	BackupID string `json:"backupId"`
}

// Message is one unit of work delivered by the queue
type Message struct {
	TenantID string  `json:"tenantId"`
	Payload  Payload `json:"payload"`
}

// Validate validates the Message struct
func (m Message) Validate() error {
	var errors ValidationErrors

	if strings.TrimSpace(m.TenantID) == "" {
		errors.Add("tenantId", "tenant ID is required", m.TenantID)
	}
	if strings.TrimSpace(m.Payload.BackupID) == "" {
		errors.Add("payload.backupId", "backup ID is required", m.Payload.BackupID)
	} else if !ValidJobID(m.Payload.BackupID) {
		errors.Add("payload.backupId", "backup ID contains invalid characters", m.Payload.BackupID)
	}
	if _, err := ParseJobType(m.Payload.Type); err != nil {
		errors.Add("payload.type", "type must be backup or restore", m.Payload.Type)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// StorageProviderType represents different storage provider types
type StorageProviderType string

const (
	StorageProviderLocal StorageProviderType = "LOCAL"
	StorageProviderS3    StorageProviderType = "S3"
	StorageProviderAzure StorageProviderType = "AZURE"
	StorageProviderGCS   StorageProviderType = "GCS"
)

func isValidStorageProviderType(t StorageProviderType) bool {
	switch t {
	case StorageProviderLocal, StorageProviderS3, StorageProviderAzure, StorageProviderGCS:
		return true
	}
	return false
}

// StorageConfig defines storage provider configuration
type StorageConfig struct {
	Provider StorageProviderType `yaml:"provider" mapstructure:"provider"`
	Local    *LocalConfig        `yaml:"local,omitempty" mapstructure:"local"`
	S3       *S3Config           `yaml:"s3,omitempty" mapstructure:"s3"`
	Azure    *AzureConfig        `yaml:"azure,omitempty" mapstructure:"azure"`
	GCS      *GCSConfig          `yaml:"gcs,omitempty" mapstructure:"gcs"`
}

// LocalConfig for local file system storage
type LocalConfig struct {
	BasePath    string      `yaml:"base_path" mapstructure:"base_path"`
	Permissions os.FileMode `yaml:"permissions" mapstructure:"permissions"`
}

// S3Config for Amazon S3 storage
type S3Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Endpoint  string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `yaml:"account_name" mapstructure:"account_name"`
	AccountKey    string `yaml:"account_key" mapstructure:"account_key"`
	ContainerName string `yaml:"container_name" mapstructure:"container_name"`
	Prefix        string `yaml:"prefix" mapstructure:"prefix"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	CredentialsPath string `yaml:"credentials_path" mapstructure:"credentials_path"`
	ProjectID       string `yaml:"project_id" mapstructure:"project_id"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
}

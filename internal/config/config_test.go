package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-backup-worker/internal/backup"
	"tenant-backup-worker/internal/database"
)

// clearEnv blanks every variable Load consults so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"_APP_DB_HOST", "_APP_DB_PORT", "_APP_DB_USER", "_APP_DB_PASS", "_APP_DB_SCHEMA",
		"BACKUP_STORAGE_PROVIDER", "BACKUP_LOCAL_BASE_PATH", "BACKUP_LOCAL_PERMISSIONS",
		"BACKUP_S3_BUCKET", "BACKUP_S3_REGION", "BACKUP_S3_ACCESS_KEY", "BACKUP_S3_SECRET_KEY",
		"TENANT_BACKUP_PAGE_SIZE", "TENANT_BACKUP_TENANT_HOST", "TENANT_BACKUP_STORAGE_PROVIDER",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenant-backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sampleConfig = `
console:
  host: console-db
  username: console
  password: console-secret
  database: appwrite
tenant:
  host: tenant-db
  port: 3307
  username: tenant
  password: tenant-secret
  database: tenants
tables:
  jobs: backups
storage:
  provider: local
  local:
    base_path: /var/lib/tenant-backups
tools:
  archiver: native
  timeout: 10m
page_size: 250
intake:
  addr: ":9090"
reconcile:
  interval: 5m
`

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "console-db", cfg.Console.Host)
	assert.Equal(t, 3306, cfg.Console.Port)
	assert.Equal(t, "tenant-db", cfg.Tenant.Host)
	assert.Equal(t, 3307, cfg.Tenant.Port)
	assert.Equal(t, "backups", cfg.Tables.Jobs)
	assert.Equal(t, database.DefaultProjectTable, cfg.Tables.Projects)
	assert.Equal(t, backup.StorageProviderLocal, cfg.Storage.Provider)
	require.NotNil(t, cfg.Storage.Local)
	assert.Equal(t, "/var/lib/tenant-backups", cfg.Storage.Local.BasePath)
	assert.Equal(t, backup.ArchiverNative, cfg.Tools.Archiver)
	assert.Equal(t, "mysqldump", cfg.Tools.DumpBinary)
	assert.Equal(t, 10*time.Minute, cfg.Tools.Timeout)
	assert.Equal(t, 250, cfg.PageSize)
	assert.Equal(t, ":9090", cfg.Intake.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, backup.DefaultStaleAfter, cfg.Reconcile.StaleAfter)
	assert.Equal(t, backup.DefaultStagingRoot, cfg.StagingRoot)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	var backupErr *backup.BackupError
	require.ErrorAs(t, err, &backupErr)
	assert.Equal(t, backup.BackupErrorTypeConfiguration, backupErr.Type)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, sampleConfig)

	t.Setenv("TENANT_BACKUP_PAGE_SIZE", "50")
	t.Setenv("TENANT_BACKUP_TENANT_HOST", "override-db")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, "override-db", cfg.Tenant.Host)
}

func TestLoad_LegacyVariablesOnly(t *testing.T) {
	clearEnv(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("_APP_DB_HOST", "mariadb")
	t.Setenv("_APP_DB_PORT", "3308")
	t.Setenv("_APP_DB_USER", "user")
	t.Setenv("_APP_DB_PASS", "password")
	t.Setenv("_APP_DB_SCHEMA", "appwrite")
	t.Setenv("BACKUP_LOCAL_BASE_PATH", t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	for _, db := range []database.DatabaseConfig{cfg.Tenant, cfg.Console} {
		assert.Equal(t, "mariadb", db.Host)
		assert.Equal(t, 3308, db.Port)
		assert.Equal(t, "user", db.Username)
		assert.Equal(t, "password", db.Password)
		assert.Equal(t, "appwrite", db.Database)
	}
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
tenant:
  host: tenant-db
tables:
  jobs: "backups; DROP TABLE x"
storage:
  provider: ftp
`)

	_, err := Load(viper.New(), path)
	require.Error(t, err)

	var validation backup.ValidationErrors
	require.ErrorAs(t, err, &validation)

	fields := make([]string, 0, len(validation))
	for _, v := range validation {
		fields = append(fields, v.Field)
	}
	assert.Contains(t, fields, "console")
	assert.Contains(t, fields, "tenant")
	assert.Contains(t, fields, "tables.jobs")
	assert.Contains(t, fields, "provider")
}

func TestLoad_StaleAfterMustOutlastToolSteps(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, sampleConfig+"  stale_after: 15m\n")

	_, err := Load(viper.New(), path)
	require.Error(t, err)

	var validation backup.ValidationErrors
	require.ErrorAs(t, err, &validation)
	require.Len(t, validation, 1)
	assert.Equal(t, "reconcile.stale_after", validation[0].Field)
}

func TestConfig_StaleAfterIgnoredWithoutReconciler(t *testing.T) {
	cfg := Config{
		Console: database.DatabaseConfig{Host: "console-db", Username: "console", Database: "appwrite"},
		Tenant:  database.DatabaseConfig{Host: "tenant-db", Username: "tenant", Database: "tenants"},
	}
	cfg.SetDefaults()
	cfg.Reconcile.StaleAfter = time.Minute

	assert.NoError(t, cfg.Validate())

	cfg.Reconcile.Interval = time.Minute
	assert.Error(t, cfg.Validate())

	cfg.Reconcile.StaleAfter = 2*cfg.Tools.Timeout + time.Minute
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, database.DefaultJobTable, cfg.Tables.Jobs)
	assert.Equal(t, database.DefaultProjectTable, cfg.Tables.Projects)
	assert.Equal(t, backup.DefaultPageSize, cfg.PageSize)
	assert.Equal(t, ":8080", cfg.Intake.Addr)
	assert.Positive(t, cfg.Intake.BufferSize)
	assert.Zero(t, cfg.Reconcile.Interval)
	assert.Equal(t, "normal", cfg.Logging.Level)
	assert.Equal(t, "auto", cfg.Logging.Format)
	assert.Equal(t, 3306, cfg.Tenant.Port)
}

func TestConfig_Redacted(t *testing.T) {
	cfg := Config{
		Console: database.DatabaseConfig{Password: "a"},
		Tenant:  database.DatabaseConfig{Password: ""},
		Storage: backup.StorageConfig{
			Provider: backup.StorageProviderS3,
			S3:       &backup.S3Config{Bucket: "b", AccessKey: "id", SecretKey: "secret"},
			Azure:    &backup.AzureConfig{AccountKey: "key"},
		},
	}

	redacted := cfg.Redacted()

	assert.Equal(t, "********", redacted.Console.Password)
	assert.Empty(t, redacted.Tenant.Password)
	assert.Equal(t, "********", redacted.Storage.S3.SecretKey)
	assert.Equal(t, "id", redacted.Storage.S3.AccessKey)
	assert.Equal(t, "********", redacted.Storage.Azure.AccountKey)

	assert.Equal(t, "a", cfg.Console.Password, "original must be untouched")
	assert.Equal(t, "secret", cfg.Storage.S3.SecretKey, "original must be untouched")
}

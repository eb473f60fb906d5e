// Package config assembles the worker configuration from a YAML file,
// TENANT_BACKUP_* environment variables and the platform's legacy _APP_DB_*
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tenant-backup-worker/internal/backup"
	"tenant-backup-worker/internal/database"
	"tenant-backup-worker/internal/queue"
)

// EnvPrefix is prepended to every environment variable viper binds
const EnvPrefix = "TENANT_BACKUP"

// ConfigName is the base name of the config file searched for
const ConfigName = "tenant-backup"

// Config is the complete worker configuration
type Config struct {
	Console     database.DatabaseConfig `mapstructure:"console" yaml:"console"`
	Tenant      database.DatabaseConfig `mapstructure:"tenant" yaml:"tenant"`
	Tables      TablesConfig            `mapstructure:"tables" yaml:"tables"`
	Storage     backup.StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Tools       backup.ToolsConfig      `mapstructure:"tools" yaml:"tools"`
	StagingRoot string                  `mapstructure:"staging_root" yaml:"staging_root"`
	PageSize    int                     `mapstructure:"page_size" yaml:"page_size"`
	Intake      IntakeConfig            `mapstructure:"intake" yaml:"intake"`
	Reconcile   ReconcileConfig         `mapstructure:"reconcile" yaml:"reconcile"`
	Logging     LoggingConfig           `mapstructure:"logging" yaml:"logging"`
}

// TablesConfig names the console tables the worker reads and writes
type TablesConfig struct {
	Jobs     string `mapstructure:"jobs" yaml:"jobs"`
	Projects string `mapstructure:"projects" yaml:"projects"`
}

// IntakeConfig configures the HTTP job intake
type IntakeConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	BufferSize int    `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// ReconcileConfig configures the stale job sweep. A zero interval disables it.
type ReconcileConfig struct {
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// Load reads configuration into a new Config. An explicit configFile must
// exist; otherwise the working directory and $HOME/.config/tenant-backup are
// searched and a missing file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerKeys(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, backup.NewConfigurationError("failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, backup.NewConfigurationError("failed to decode configuration", err)
	}

	cfg.LoadFromEnvironment()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, backup.NewConfigurationError("invalid configuration", err)
	}
	return &cfg, nil
}

// registerKeys gives viper a default for every key so AutomaticEnv can
// resolve it even when no config file mentions it.
func registerKeys(v *viper.Viper) {
	for _, db := range []string{"console", "tenant"} {
		v.SetDefault(db+".host", "")
		v.SetDefault(db+".port", 3306)
		v.SetDefault(db+".username", "")
		v.SetDefault(db+".password", "")
		v.SetDefault(db+".database", "")
		v.SetDefault(db+".timeout", 30*time.Second)
		v.SetDefault(db+".max_open_conns", 10)
	}

	v.SetDefault("tables.jobs", database.DefaultJobTable)
	v.SetDefault("tables.projects", database.DefaultProjectTable)

	v.SetDefault("storage.provider", string(backup.StorageProviderLocal))
	v.SetDefault("tools.dump_binary", "mysqldump")
	v.SetDefault("tools.apply_binary", "mysql")
	v.SetDefault("tools.tar_binary", "tar")
	v.SetDefault("tools.archiver", backup.ArchiverTar)
	v.SetDefault("tools.timeout", backup.DefaultCommandTimeout)

	v.SetDefault("staging_root", backup.DefaultStagingRoot)
	v.SetDefault("page_size", backup.DefaultPageSize)

	v.SetDefault("intake.addr", ":8080")
	v.SetDefault("intake.buffer_size", queue.DefaultBufferSize)

	v.SetDefault("reconcile.interval", time.Duration(0))
	v.SetDefault("reconcile.stale_after", backup.DefaultStaleAfter)

	v.SetDefault("logging.level", "normal")
	v.SetDefault("logging.format", "auto")
	v.SetDefault("logging.file", "")
}

// SetDefaults fills any value still unset
func (c *Config) SetDefaults() {
	c.Console.SetDefaults()
	c.Tenant.SetDefaults()
	if c.Tables.Jobs == "" {
		c.Tables.Jobs = database.DefaultJobTable
	}
	if c.Tables.Projects == "" {
		c.Tables.Projects = database.DefaultProjectTable
	}
	c.Storage.SetDefaults()
	c.Tools.SetDefaults()
	if c.StagingRoot == "" {
		c.StagingRoot = backup.DefaultStagingRoot
	}
	if c.PageSize <= 0 {
		c.PageSize = backup.DefaultPageSize
	}
	if c.Intake.Addr == "" {
		c.Intake.Addr = ":8080"
	}
	if c.Intake.BufferSize <= 0 {
		c.Intake.BufferSize = queue.DefaultBufferSize
	}
	if c.Reconcile.StaleAfter <= 0 {
		c.Reconcile.StaleAfter = backup.DefaultStaleAfter
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "normal"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "auto"
	}
}

// LoadFromEnvironment applies the platform's legacy variables. _APP_DB_*
// describe the tenant database and also seed the console database when it is
// not configured separately.
func (c *Config) LoadFromEnvironment() {
	legacy := database.DatabaseConfig{
		Host:     os.Getenv("_APP_DB_HOST"),
		Username: os.Getenv("_APP_DB_USER"),
		Password: os.Getenv("_APP_DB_PASS"),
		Database: os.Getenv("_APP_DB_SCHEMA"),
	}
	if val := os.Getenv("_APP_DB_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			legacy.Port = port
		}
	}

	applyLegacy(&c.Tenant, legacy)
	applyLegacy(&c.Console, legacy)

	c.Storage.LoadFromEnvironment()
}

func applyLegacy(dst *database.DatabaseConfig, legacy database.DatabaseConfig) {
	if dst.Host == "" {
		dst.Host = legacy.Host
	}
	if legacy.Port != 0 && (dst.Port == 0 || dst.Port == 3306) {
		dst.Port = legacy.Port
	}
	if dst.Username == "" {
		dst.Username = legacy.Username
	}
	if dst.Password == "" {
		dst.Password = legacy.Password
	}
	if dst.Database == "" {
		dst.Database = legacy.Database
	}
}

// Validate validates the whole configuration
func (c *Config) Validate() error {
	var errs backup.ValidationErrors

	if err := c.Console.Validate(); err != nil {
		errs.Add("console", err.Error(), nil)
	}
	if err := c.Tenant.Validate(); err != nil {
		errs.Add("tenant", err.Error(), nil)
	}
	if !backup.ValidIdentifier(c.Tables.Jobs) {
		errs.Add("tables.jobs", "invalid table name", c.Tables.Jobs)
	}
	if !backup.ValidIdentifier(c.Tables.Projects) {
		errs.Add("tables.projects", "invalid table name", c.Tables.Projects)
	}
	errs.Merge("storage", c.Storage.Validate())
	errs.Merge("tools", c.Tools.Validate())
	if c.StagingRoot == "" {
		errs.Add("staging_root", "staging root is required", c.StagingRoot)
	}
	if c.Reconcile.Interval < 0 {
		errs.Add("reconcile.interval", "interval cannot be negative", c.Reconcile.Interval)
	}
	// A running job refreshes updated_at between tool steps, so the longest
	// quiet stretch is one step plus its transfer.
	if c.Reconcile.Interval > 0 && c.Tools.Timeout > 0 && c.Reconcile.StaleAfter <= 2*c.Tools.Timeout {
		errs.Add("reconcile.stale_after",
			fmt.Sprintf("stale_after must exceed twice the tool timeout (%s)", c.Tools.Timeout),
			c.Reconcile.StaleAfter.String())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Redacted returns a copy with every secret masked
func (c Config) Redacted() Config {
	const mask = "********"

	maskSecret := func(s string) string {
		if s == "" {
			return ""
		}
		return mask
	}

	c.Console.Password = maskSecret(c.Console.Password)
	c.Tenant.Password = maskSecret(c.Tenant.Password)

	if c.Storage.S3 != nil {
		s3 := *c.Storage.S3
		s3.SecretKey = maskSecret(s3.SecretKey)
		c.Storage.S3 = &s3
	}
	if c.Storage.Azure != nil {
		azure := *c.Storage.Azure
		azure.AccountKey = maskSecret(azure.AccountKey)
		c.Storage.Azure = &azure
	}
	return c
}

// String implements fmt.Stringer without exposing secrets
func (c Config) String() string {
	return fmt.Sprintf("console=%s@%s tenant=%s@%s storage=%s",
		c.Console.Database, c.Console.Host, c.Tenant.Database, c.Tenant.Host, c.Storage.Provider)
}

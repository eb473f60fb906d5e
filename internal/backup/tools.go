package backup

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Archiver kinds
const (
	ArchiverTar    = "tar"
	ArchiverNative = "native"
)

// ToolsConfig names the external binaries the pipelines invoke
type ToolsConfig struct {
	DumpBinary  string        `yaml:"dump_binary" mapstructure:"dump_binary"`
	ApplyBinary string        `yaml:"apply_binary" mapstructure:"apply_binary"`
	TarBinary   string        `yaml:"tar_binary" mapstructure:"tar_binary"`
	Archiver    string        `yaml:"archiver" mapstructure:"archiver"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SetDefaults sets default values for the tools configuration
func (tc *ToolsConfig) SetDefaults() {
	if tc.DumpBinary == "" {
		tc.DumpBinary = "mysqldump"
	}
	if tc.ApplyBinary == "" {
		tc.ApplyBinary = "mysql"
	}
	if tc.TarBinary == "" {
		tc.TarBinary = "tar"
	}
	if tc.Archiver == "" {
		tc.Archiver = ArchiverTar
	}
	if tc.Timeout <= 0 {
		tc.Timeout = DefaultCommandTimeout
	}
}

// Validate validates the ToolsConfig struct
func (tc *ToolsConfig) Validate() error {
	var errors ValidationErrors

	if tc.DumpBinary == "" {
		errors.Add("dump_binary", "dump binary is required", tc.DumpBinary)
	}
	if tc.ApplyBinary == "" {
		errors.Add("apply_binary", "apply binary is required", tc.ApplyBinary)
	}
	switch tc.Archiver {
	case ArchiverTar:
		if tc.TarBinary == "" {
			errors.Add("tar_binary", "tar binary is required for the tar archiver", tc.TarBinary)
		}
	case ArchiverNative:
	default:
		errors.Add("archiver", "archiver must be tar or native", tc.Archiver)
	}
	if tc.Timeout <= 0 {
		errors.Add("timeout", "tool timeout must be positive", tc.Timeout.String())
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

func connectionArgs(conn ConnectionConfig) []string {
	return []string{
		"-h", conn.Host,
		"-P", strconv.Itoa(conn.Port),
		"-u", conn.Username,
	}
}

func passwordEnv(conn ConnectionConfig) []string {
	if conn.Password == "" {
		return nil
	}
	return []string{"MYSQL_PWD=" + conn.Password}
}

// DumpCommand builds the mysqldump invocation for the given tables. The
// password travels through MYSQL_PWD so it never appears in the process list.
func DumpCommand(binary string, conn ConnectionConfig, tables []string, out io.Writer) Command {
	args := []string{"--create-options", "--lock-tables", "--skip-dump-date"}
	args = append(args, connectionArgs(conn)...)
	args = append(args, conn.Schema)
	args = append(args, tables...)

	return Command{
		Name:   binary,
		Args:   args,
		Env:    passwordEnv(conn),
		Stdout: out,
	}
}

// ApplyCommand builds the mysql client invocation that replays a dump read from in
func ApplyCommand(binary string, conn ConnectionConfig, in io.Reader) Command {
	args := append(connectionArgs(conn), conn.Schema)
	return Command{
		Name:  binary,
		Args:  args,
		Env:   passwordEnv(conn),
		Stdin: in,
	}
}

// runChecked executes cmd and turns a non-zero exit into a PROCESS_ERROR
func runChecked(ctx context.Context, executor CommandExecutor, cmd Command, what string) error {
	result, err := executor.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return NewProcessError(fmt.Sprintf("%s exited with status %d", what, result.ExitCode), nil).
			WithContext("command", cmd.Name).
			WithContext("exit_code", result.ExitCode).
			WithContext("stderr", strings.TrimSpace(result.Stderr))
	}
	return nil
}

// TarArchiver shells out to tar, matching the archive layout produced by
// `tar -czf {archive} -C {dir} {member}`.
type TarArchiver struct {
	binary   string
	executor CommandExecutor
}

// NewTarArchiver creates an archiver using the given tar binary
func NewTarArchiver(binary string, executor CommandExecutor) *TarArchiver {
	if binary == "" {
		binary = "tar"
	}
	return &TarArchiver{binary: binary, executor: executor}
}

// Compress writes dir/member into a gzip tarball at archivePath
func (ta *TarArchiver) Compress(ctx context.Context, dir, member, archivePath string) error {
	return runChecked(ctx, ta.executor, Command{
		Name: ta.binary,
		Args: []string{"-czf", archivePath, "-C", dir, member},
	}, "compress")
}

// Extract unpacks member from archivePath into dir
func (ta *TarArchiver) Extract(ctx context.Context, archivePath, dir, member string) error {
	return runChecked(ctx, ta.executor, Command{
		Name: ta.binary,
		Args: []string{"-xzf", archivePath, "-C", dir, member},
	}, "extract")
}

// NewArchiver builds the archiver selected by the tools configuration
func NewArchiver(config ToolsConfig, executor CommandExecutor) (Archiver, error) {
	switch config.Archiver {
	case ArchiverTar, "":
		return NewTarArchiver(config.TarBinary, executor), nil
	case ArchiverNative:
		return NewNativeArchiver(), nil
	default:
		return nil, NewConfigurationError(fmt.Sprintf("unsupported archiver: %s", config.Archiver), nil)
	}
}

package backup

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpCommand(t *testing.T) {
	conn := testTenant().Database
	var out bytes.Buffer

	cmd := DumpCommand("mysqldump", conn, []string{"_1_t1", "_1_t1_perms"}, &out)

	assert.Equal(t, "mysqldump", cmd.Name)
	assert.Equal(t, []string{
		"--create-options", "--lock-tables", "--skip-dump-date",
		"-h", "db", "-P", "3306", "-u", "user",
		"appwrite", "_1_t1", "_1_t1_perms",
	}, cmd.Args)
	assert.Equal(t, []string{"MYSQL_PWD=secret"}, cmd.Env)
	assert.Same(t, &out, cmd.Stdout)
	assert.NotContains(t, strings.Join(cmd.Args, " "), "secret")
}

func TestApplyCommand(t *testing.T) {
	conn := testTenant().Database
	conn.Password = ""
	in := strings.NewReader("SELECT 1;")

	cmd := ApplyCommand("mysql", conn, in)

	assert.Equal(t, []string{"-h", "db", "-P", "3306", "-u", "user", "appwrite"}, cmd.Args)
	assert.Empty(t, cmd.Env)
	assert.Equal(t, in, cmd.Stdin)
}

func TestTarArchiver_Arguments(t *testing.T) {
	executor := newFakeExecutor()
	archiver := NewTarArchiver("", executor)
	ctx := context.Background()

	require.NoError(t, archiver.Compress(ctx, "/tmp/backups/b1", "b1.sql", "/tmp/backups/b1/b1.tar.gz"))
	require.NoError(t, archiver.Extract(ctx, "/tmp/backups/r1/b1.tar.gz", "/tmp/backups/r1", "b1.sql"))

	require.Len(t, executor.commands, 2)
	assert.Equal(t, "tar", executor.commands[0].Name)
	assert.Equal(t, []string{"-czf", "/tmp/backups/b1/b1.tar.gz", "-C", "/tmp/backups/b1", "b1.sql"}, executor.commands[0].Args)
	assert.Equal(t, []string{"-xzf", "/tmp/backups/r1/b1.tar.gz", "-C", "/tmp/backups/r1", "b1.sql"}, executor.commands[1].Args)
}

func TestTarArchiver_NonZeroExit(t *testing.T) {
	executor := newFakeExecutor()
	executor.exitCodes["tar"] = 2

	err := NewTarArchiver("tar", executor).Compress(context.Background(), "/d", "m.sql", "/d/m.tar.gz")
	require.Error(t, err)
	assert.True(t, IsProcessError(err))

	var backupErr *BackupError
	require.ErrorAs(t, err, &backupErr)
	assert.Equal(t, 2, backupErr.Context["exit_code"])
	assert.Equal(t, "tar failed", backupErr.Context["stderr"])
}

func TestToolsConfig(t *testing.T) {
	var config ToolsConfig
	config.SetDefaults()

	assert.Equal(t, "mysqldump", config.DumpBinary)
	assert.Equal(t, "mysql", config.ApplyBinary)
	assert.Equal(t, "tar", config.TarBinary)
	assert.Equal(t, ArchiverTar, config.Archiver)
	assert.Equal(t, DefaultCommandTimeout, config.Timeout)
	require.NoError(t, config.Validate())

	config.Archiver = "zip"
	config.DumpBinary = ""
	err := config.Validate()
	require.Error(t, err)

	var validationErrs ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	assert.Len(t, validationErrs, 2)
}

func TestNewArchiver(t *testing.T) {
	archiver, err := NewArchiver(ToolsConfig{Archiver: ArchiverNative}, nil)
	require.NoError(t, err)
	assert.IsType(t, &NativeArchiver{}, archiver)

	archiver, err = NewArchiver(ToolsConfig{Archiver: ArchiverTar, TarBinary: "gtar"}, newFakeExecutor())
	require.NoError(t, err)
	assert.IsType(t, &TarArchiver{}, archiver)

	_, err = NewArchiver(ToolsConfig{Archiver: "rar"}, nil)
	assert.Error(t, err)
}

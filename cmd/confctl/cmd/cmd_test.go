package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzhelezko/confedit/internal/privexec"
	"github.com/yzhelezko/confedit/internal/status"
)

// run executes confctl with fresh flag values and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	host, port, user, askPass = "", 22, "tester", false
	logLevel, program, verbose = "error", privexec.DefaultProgram, false
	putSudo, execSudo = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPutCatAndHistory(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app.conf")
	source := filepath.Join(dir, "new.conf")
	require.NoError(t, os.WriteFile(target, []byte("old\n"), 0o644))
	require.NoError(t, os.WriteFile(source, []byte("new\n"), 0o644))

	out, err := run(t, "", "--data-dir", dir, "put", target, source)
	require.NoError(t, err)
	assert.Contains(t, out, target)

	out, err = run(t, "", "cat", target)
	require.NoError(t, err)
	assert.Equal(t, "new\n", out)

	out, err = run(t, "", "--data-dir", dir, "history", "list", target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	id := strings.Fields(lines[1])[0]

	out, err = run(t, "", "--data-dir", dir, "history", "show", id)
	require.NoError(t, err)
	assert.Equal(t, "new\n", out)

	out, err = run(t, "", "--data-dir", dir, "history", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "1 record(s) deleted")
}

func TestPutReadsStdin(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app.conf")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))

	_, err := run(t, "from stdin", "--data-dir", dir, "put", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(data))
}

func TestCatMissingFile(t *testing.T) {
	_, err := run(t, "", "cat", filepath.Join(t.TempDir(), "missing.conf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access file")
}

func TestExecLocal(t *testing.T) {
	out, err := run(t, "", "exec", "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestExecSudoReadsSecret(t *testing.T) {
	out, err := run(t, "pw\n", "--sudo-program", "", "exec", "--sudo", "printf", "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = run(t, "\n", "--sudo-program", "", "exec", "--sudo", "true")
	assert.Error(t, err, "empty password is rejected")
}

func TestTestRequiresHost(t *testing.T) {
	_, err := run(t, "", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--host")
}

func TestCheck(t *testing.T) {
	assert.NoError(t, check(status.Ok("done"), false))

	denied := status.Fail(status.KindPermission, "file not writable: /etc/hosts")
	assert.EqualError(t, check(denied, false), "file not writable: /etc/hosts (retry with --sudo)")
	assert.EqualError(t, check(denied, true), "file not writable: /etc/hosts")
}

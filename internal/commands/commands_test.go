package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dtr.yaml")
	cfg := fmt.Sprintf(`data_dir: %s
store:
  scratch_dir: %s
log:
  level: error
location:
  fixed: "14.599512,120.984222"
%s`, filepath.Join(dir, "data"), filepath.Join(dir, "scratch"), extra)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return path
}

// execute runs one dtr invocation and returns stdout, stderr and the exit code
func execute(t *testing.T, cfg string, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	exitCode = 0
	resetFlags(rootCmd)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--config", cfg}, args...))
	require.NoError(t, rootCmd.Execute())
	return out.String(), errOut.String(), exitCode
}

// resetFlags restores flag defaults; cobra keeps parsed values between runs
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestSessionLifecycle(t *testing.T) {
	cfg := writeConfig(t, "")

	out, _, code := execute(t, cfg, "in", "--no-ui")
	require.Zero(t, code)
	assert.Contains(t, out, "Timed in")
	assert.Contains(t, out, "14.599512,120.984222")

	_, errOut, code := execute(t, cfg, "in", "--no-ui")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already in progress")

	out, _, _ = execute(t, cfg, "pause")
	assert.Contains(t, out, "Paused")

	out, _, _ = execute(t, cfg, "status")
	assert.Contains(t, out, "Paused since")

	out, _, _ = execute(t, cfg, "resume")
	assert.Contains(t, out, "Resumed")

	out, _, code = execute(t, cfg, "out", "--notes", "filed reports")
	require.Zero(t, code)
	assert.Contains(t, out, "Timed out at")

	out, _, _ = execute(t, cfg, "out")
	assert.Contains(t, out, "No session in progress")

	out, _, _ = execute(t, cfg, "ls", "--no-ui", "--all")
	assert.Contains(t, out, "filed reports")
	assert.Contains(t, out, "pending")
}

func TestArchiveCommands(t *testing.T) {
	cfg := writeConfig(t, "")
	execute(t, cfg, "in", "--no-ui")
	execute(t, cfg, "out")

	out, _, code := execute(t, cfg, "archive", "1")
	require.Zero(t, code)
	assert.Contains(t, out, "Archived session #1")

	out, _, _ = execute(t, cfg, "ls", "--no-ui")
	assert.Contains(t, out, "No sessions found")

	out, _, _ = execute(t, cfg, "archived")
	assert.Contains(t, out, "pending")

	out, _, _ = execute(t, cfg, "recover", "1")
	assert.Contains(t, out, "Recovered session #1")

	_, errOut, code := execute(t, cfg, "purge", "1")
	assert.Equal(t, 1, code, "only archived sessions can be purged")
	assert.NotEmpty(t, errOut)

	_, errOut, code = execute(t, cfg, "archive", "abc")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid session ID")
}

func TestGoalReportExport(t *testing.T) {
	cfg := writeConfig(t, "")
	dir := t.TempDir()

	out, _, _ := execute(t, cfg, "goal")
	assert.Contains(t, out, "Goal: 600 hours")

	execute(t, cfg, "goal", "486")
	out, _, _ = execute(t, cfg, "goal")
	assert.Contains(t, out, "Goal: 486 hours")

	_, _, code := execute(t, cfg, "goal", "0")
	assert.Equal(t, 1, code)

	execute(t, cfg, "in", "--no-ui")
	execute(t, cfg, "out")

	csvPath := filepath.Join(dir, "dtr.csv")
	out, _, code = execute(t, cfg, "report", csvPath)
	require.Zero(t, code)
	assert.Contains(t, out, "Wrote 1 session(s)")
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("Date,Time In")))

	_, errOut, code := execute(t, cfg, "report", filepath.Join(dir, "dtr.doc"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unsupported report format")

	imgPath := filepath.Join(dir, "backup.db")
	_, _, code = execute(t, cfg, "export", imgPath)
	require.Zero(t, code)
	img, err := os.ReadFile(imgPath)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(img[:16]))
}

func TestReset(t *testing.T) {
	cfg := writeConfig(t, "")
	execute(t, cfg, "in", "--no-ui")
	execute(t, cfg, "out")

	_, errOut, code := execute(t, cfg, "reset")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--yes")

	_, _, code = execute(t, cfg, "reset", "--yes")
	require.Zero(t, code)

	out, _, _ := execute(t, cfg, "ls", "--no-ui", "--all")
	assert.Contains(t, out, "No sessions found")
}

func TestSync(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		cfg := writeConfig(t, "")
		_, errOut, code := execute(t, cfg, "sync")
		assert.Equal(t, 1, code)
		assert.Contains(t, errOut, "not configured")
	})

	t.Run("sqlite backend", func(t *testing.T) {
		remoteDB := filepath.Join(t.TempDir(), "remote.db")
		cfg := writeConfig(t, fmt.Sprintf(`user:
  uid: student-1
  name: Ana Cruz
remote:
  driver: sqlite
  dsn: %s
sync:
  inline_evidence: true
  min_gap: 1h
`, remoteDB))

		execute(t, cfg, "in", "--no-ui")
		execute(t, cfg, "out")

		out, _, code := execute(t, cfg, "sync")
		require.Zero(t, code)
		assert.Contains(t, out, "Synced")

		out, _, code = execute(t, cfg, "class", "logs", "student-1")
		require.Zero(t, code)
		assert.Contains(t, out, "pending")
	})
}

func TestClassCommands(t *testing.T) {
	remoteDB := filepath.Join(t.TempDir(), "remote.db")
	teacher := writeConfig(t, fmt.Sprintf(`user:
  uid: teacher-1
  role: teacher
remote:
  driver: sqlite
  dsn: %s
`, remoteDB))

	out, _, code := execute(t, teacher, "class", "create", "OJT 2024")
	require.Zero(t, code)
	assert.Contains(t, out, "code ")

	out, _, _ = execute(t, teacher, "class", "list")
	assert.Contains(t, out, "OJT 2024")

	student := writeConfig(t, fmt.Sprintf(`user:
  uid: student-1
  name: Ana Cruz
remote:
  driver: sqlite
  dsn: %s
`, remoteDB))
	_, _, code = execute(t, student, "class", "create", "nope")
	assert.Equal(t, 1, code)

	out, _, code = execute(t, student, "class", "join", "abc123")
	require.Zero(t, code)
	assert.Contains(t, out, "ABC123")

	out, _, _ = execute(t, teacher, "class", "students", "abc123")
	assert.Contains(t, out, "Ana Cruz")
}

func TestVersionAndHelp(t *testing.T) {
	cfg := writeConfig(t, "")
	SetVersion("1.2.3", "abc", "today")
	out, _, _ := execute(t, cfg, "version")
	assert.Contains(t, out, "dtr 1.2.3")

	out, _, _ = execute(t, cfg, "help")
	assert.Contains(t, out, "offline-first daily time record")
}

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nudge/internal/compiler"
	"github.com/roach88/nudge/internal/ir"
)

const outOfRangeCUE = `package reminders

reminder: night: {
	title: "Lights out"
	triggers: [{id: "t1", type: "PHONE_UNLOCK"}]
	conditions: [{id: "c1", type: "TIME_RANGE", config: {start_hour: 22, end_hour: 25}}]
}
`

// definitionsDir writes files into a fresh directory.
func definitionsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeFile(t, dir, name, content)
	}
	return dir
}

func runCompileCmd(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestCompileValidDefinitions(t *testing.T) {
	dir := definitionsDir(t, map[string]string{"reminders.cue": remindersCUE})

	buf, err := runCompileCmd(t, "text", dir)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled 2 reminder(s)")
	assert.Contains(t, output, "charge: Back up photos (1 trigger(s), 0 condition(s))")
	assert.Contains(t, output, "gym: Pack gym bag")
}

func TestCompileValidDefinitionsJSON(t *testing.T) {
	dir := definitionsDir(t, map[string]string{"reminders.cue": remindersCUE})

	buf, err := runCompileCmd(t, "json", dir)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Reminders, 2)
	assert.Equal(t, "charge", resp.Data.Reminders[0].ID, "reminders are sorted by id")
	assert.Equal(t, "gym", resp.Data.Reminders[1].ID)
}

func TestCompileMultipleFiles(t *testing.T) {
	dir := definitionsDir(t, map[string]string{
		"home.cue": `package reminders

reminder: plants: {
	title: "Water the plants"
	triggers: [{id: "t1", type: "PHONE_UNLOCK"}]
}
`,
		"work.cue": `package reminders

reminder: standup: {
	title: "Post standup notes"
	triggers: [{id: "t1", type: "APP_OPENED", config: {activity_name: "com.slack"}}]
}
`,
	})

	buf, err := runCompileCmd(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Compiled 2 reminder(s)")
}

func TestCompileOutputToFile(t *testing.T) {
	dir := definitionsDir(t, map[string]string{"reminders.cue": remindersCUE})
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	buf, err := runCompileCmd(t, "text", dir, "--output", outputFile)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Wrote reminders to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var reminders []ir.Reminder
	require.NoError(t, json.Unmarshal(data, &reminders))
	require.Len(t, reminders, 2)
	assert.Equal(t, ir.TriggerLocationEnter, reminders[1].Triggers[0].Type)
}

func TestCompileNonExistentDirectory(t *testing.T) {
	buf, err := runCompileCmd(t, "text", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}

func TestCompileEmptyDirectory(t *testing.T) {
	buf, err := runCompileCmd(t, "text", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNoFiles)
}

func TestCompileMissingTitle(t *testing.T) {
	dir := definitionsDir(t, map[string]string{"bad.cue": `package reminders

reminder: untitled: {
	triggers: [{id: "t1", type: "PHONE_UNLOCK"}]
}
`})

	buf, err := runCompileCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Compilation failed")
	assert.Contains(t, buf.String(), compiler.ErrMissingField)
}

func TestCompileOutOfRangeJSON(t *testing.T) {
	dir := definitionsDir(t, map[string]string{"night.cue": outOfRangeCUE})

	buf, err := runCompileCmd(t, "json", dir)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrOutOfRange, resp.Error.Code)
}

func TestCompileVerboseOutput(t *testing.T) {
	dir := definitionsDir(t, map[string]string{"reminders.cue": remindersCUE})

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, errOut.String(), "Found 1 CUE file(s)")
	assert.Contains(t, errOut.String(), "Compiled reminder: gym")
}

func TestFindCUEFiles(t *testing.T) {
	dir := definitionsDir(t, map[string]string{
		"a.cue":        "package reminders",
		"nested/b.cue": "package reminders",
		"notes.txt":    "ignored",
	})

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.cue"),
		filepath.Join(dir, "nested", "b.cue"),
	}, files)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"title", compiler.ErrMissingField},
		{"triggers", compiler.ErrMissingField},
		{"reminder", compiler.ErrMissingField},
		{"triggers[0].config", compiler.ErrInvalidConfig},
		{"conditions[1].config", compiler.ErrInvalidConfig},
		{"cue", ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field))
		})
	}
}

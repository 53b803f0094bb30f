package cli

import (
	"bufio"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/ir"
)

// seed stores the unlock reminder in a fresh database and returns its path.
func seed(t *testing.T) string {
	t.Helper()
	dir := isolate(t)
	db := filepath.Join(dir, "nudge.db")
	file := writeFile(t, dir, "water.json", unlockReminderJSON)
	_, _, err := execute(t, "", "add", file, "--db", db)
	require.NoError(t, err)
	return db
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent([]byte(`{"type": "CHARGING_STATE_CHANGED", "timestamp": 42, "data": {"is_charging": true}}`))
	require.NoError(t, err)
	assert.Equal(t, ir.EventChargingStateChanged, ev.Type)
	assert.Equal(t, int64(42), ev.Timestamp)

	ev, err = decodeEvent([]byte(`{"type": "APP_BECAME_ACTIVE"}`))
	require.NoError(t, err)
	assert.NotZero(t, ev.Timestamp, "missing timestamp defaults to now")

	_, err = decodeEvent([]byte(`{"timestamp": 1}`))
	assert.ErrorContains(t, err, "type is required")

	_, err = decodeEvent([]byte(`{not json`))
	assert.ErrorContains(t, err, "parse event")
}

func TestEmit_FromFile(t *testing.T) {
	db := seed(t)
	file := writeFile(t, filepath.Dir(db), "unlock.json", `{"type": "APP_BECAME_ACTIVE", "timestamp": 1000}`)

	out, _, err := execute(t, "", "emit", file, "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   engine.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.EventAppBecameActive, resp.Data.EventType)
	assert.Equal(t, 1, resp.Data.Considered)
	require.Len(t, resp.Data.Outcomes, 1)
	assert.Equal(t, engine.OutcomeFired, resp.Data.Outcomes[0].Kind)
	assert.NotEmpty(t, resp.Data.Outcomes[0].NotificationID)
}

func TestEmit_FiresOnce(t *testing.T) {
	db := seed(t)

	_, _, err := execute(t, `{"type": "APP_BECAME_ACTIVE", "timestamp": 1000}`, "emit", "-", "--db", db)
	require.NoError(t, err)

	out, _, err := execute(t, `{"type": "APP_BECAME_ACTIVE", "timestamp": 2000}`, "emit", "-", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "APP_BECAME_ACTIVE: 0 listening, 0 fired")
}

func TestEmit_NoMatch(t *testing.T) {
	db := seed(t)

	out, _, err := execute(t, `{"type": "CHARGING_STATE_CHANGED", "timestamp": 1000, "data": {"is_charging": false}}`, "emit", "-", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "CHARGING_STATE_CHANGED: 0 listening, 0 fired")
	assert.Len(t, listJSON(t, db, "--status", "WAITING"), 1)
}

func TestEmit_BadInput(t *testing.T) {
	db := seed(t)

	out, _, err := execute(t, `{"timestamp": 1000}`, "emit", "-", "--db", db, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBadInput, resp.Error.Code)
}

func TestRun_Stream(t *testing.T) {
	db := seed(t)
	stdin := strings.Join([]string{
		`# morning`,
		`{"type": "APP_BECAME_ACTIVE", "timestamp": 1000}`,
		``,
		`{"type": "APP_BECAME_ACTIVE", "timestamp": 2000}`,
	}, "\n")

	out, _, err := execute(t, stdin, "run", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ water fired")
	assert.Contains(t, out, "Processed 2 event(s): 1 fired, 0 failed, 0 rejected")
}

func TestRun_JSONLines(t *testing.T) {
	db := seed(t)
	stdin := strings.Join([]string{
		`{"type": "APP_BECAME_ACTIVE", "timestamp": 1000}`,
		`not json`,
		`{"type": "APP_BECAME_ACTIVE", "timestamp": 2000}`,
	}, "\n")

	out, _, err := execute(t, stdin, "run", "--db", db, "--format", "json")
	require.Error(t, err, "rejected lines fail the run")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var lines []eventLine
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var l eventLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &l), scanner.Text())
		lines = append(lines, l)
	}
	require.Len(t, lines, 3)

	assert.Equal(t, 1, lines[0].Line)
	require.NotNil(t, lines[0].Report)
	assert.Equal(t, 1, lines[0].Report.Count(engine.OutcomeFired))

	assert.Equal(t, 2, lines[1].Line)
	assert.Nil(t, lines[1].Report)
	assert.Contains(t, lines[1].Error, "parse event")

	assert.Equal(t, 3, lines[2].Line)
	require.NotNil(t, lines[2].Report)
	assert.Empty(t, lines[2].Report.Outcomes)
}

func TestRun_AmbientCarriesAcrossLines(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "nudge.db")
	file := writeFile(t, dir, "backup.json", `{
		"id": "backup",
		"title": "Back up photos",
		"created_at": 1,
		"triggers": [{"id": "t1", "type": "PHONE_UNLOCK"}],
		"conditions": [{"id": "c1", "type": "IS_CHARGING", "config": {"required": true}}]
	}`)
	_, _, err := execute(t, "", "add", file, "--db", db)
	require.NoError(t, err)

	stdin := strings.Join([]string{
		`{"type": "APP_BECAME_ACTIVE", "timestamp": 1000}`,
		`{"type": "CHARGING_STATE_CHANGED", "timestamp": 2000, "data": {"is_charging": true}}`,
		`{"type": "APP_BECAME_ACTIVE", "timestamp": 3000}`,
	}, "\n")
	_, _, err = execute(t, stdin, "run", "--db", db)
	require.NoError(t, err)

	fired := listJSON(t, db, "--status", "FIRED")
	require.Len(t, fired, 1)
	assert.Equal(t, int64(3000), *fired[0].FiredAt)
}

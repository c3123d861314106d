package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitcore/internal/core"
	"habitcore/pkg/domain"
)

// resetFlags restores every flag to its default so consecutive Execute calls
// do not see values from the previous run.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

type harness struct {
	t      *testing.T
	config string
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "habitcore.toml")
	body := `timezone = "UTC"

[storage]
driver = "sqlite"
sqlite_path = "` + filepath.ToSlash(filepath.Join(dir, "habitcore.db")) + `"

[blob]
driver = "fs"
fs_root = "` + filepath.ToSlash(filepath.Join(dir, "archives")) + `"

[log]
level = "error"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	h := &harness{t: t, config: cfgPath, now: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}
	prev := clock
	clock = core.ClockFunc(func() time.Time { return h.now })
	t.Cleanup(func() { clock = prev })
	return h
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		// PersistentPostRunE is skipped on failure
		_ = teardown()
	}
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "habitctl %s", strings.Join(args, " "))
	return out
}

const protocolYAML = `title: Morning
days: 3
startDate: 2024-01-01
refreshTime: "04:00"
routine:
  - text: Read
  - text: Stretch
    time: "07:00"
`

func TestCommandsEndToEnd(t *testing.T) {
	h := newHarness(t)
	file := filepath.Join(t.TempDir(), "morning.yaml")
	require.NoError(t, os.WriteFile(file, []byte(protocolYAML), 0o600))

	id := strings.TrimSpace(h.mustRun("create", "--file", file))
	require.NotEmpty(t, id)

	assert.Contains(t, h.mustRun("list"), "Morning")

	out := h.mustRun("toggle", id, "0")
	assert.Equal(t, "day 2: \"Read\" is done\n", out)

	_, err := h.run("toggle", id, "1", "--day", "1")
	var forbidden domain.EditForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, 2, forbidden.EffectiveDay)

	out = h.mustRun("agenda", id)
	assert.Equal(t, "day 2\n[ ] 1 07:00 Stretch\n[x] 0 Read\n", out)
	assert.Equal(t, "day 2\n[ ] 1 07:00 Stretch\n", h.mustRun("agenda", id, "--pending"))

	h.mustRun("override", id, "3", "1", "--text", "Yoga")
	out = h.mustRun("add-item", id, "Water", "--time", "06:00")
	assert.Contains(t, out, `"Water"`)
	h.mustRun("remove-item", id, "2")
	h.mustRun("settings", id, "--title", "Evening")

	out = h.mustRun("show", id)
	var shown domain.Protocol
	require.NoError(t, shown.UnmarshalJSON([]byte(out)))
	assert.Equal(t, "Evening", shown.Title)
	assert.Equal(t, 4, shown.History().Len())

	out = h.mustRun("stats", id)
	assert.Contains(t, out, "day:            2 of 3")
	assert.Contains(t, out, "completed:      0 (0%)")

	h.mustRun("reset", id)
	assert.Contains(t, h.mustRun("archives", id), "reset")

	h.mustRun("delete", id)
	assert.Equal(t, "no protocols\n", h.mustRun("list"))
	_, err = h.run("show", id)
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRolloverShiftsEffectiveDay(t *testing.T) {
	h := newHarness(t)
	id := strings.TrimSpace(h.mustRun("create", "--title", "Night", "--days", "3", "--item", "23:30 Journal"))

	// started 2024-01-02; at 03:00 on the 3rd a midnight rollover already
	// moved to day 2 while a 04:00 refresh keeps day 1 open
	h.now = time.Date(2024, 1, 3, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "day 2: \"Journal\" is done\n", h.mustRun("toggle", id, "0"))

	h.mustRun("settings", id, "--refresh-time", "04:00")
	assert.Equal(t, "day 1: \"Journal\" is done\n", h.mustRun("toggle", id, "0"))
	_, err := h.run("toggle", id, "0", "--day", "2")
	var forbidden domain.EditForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("create", "--title", "Empty", "--days", "0")
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("title: x\nlength: 3\n"), 0o600))
	_, err = h.run("create", "--file", bad)
	require.ErrorContains(t, err, "parse protocol file")
}

func TestReadProtocolFile(t *testing.T) {
	pf, err := readProtocolFile(strings.NewReader(protocolYAML))
	require.NoError(t, err)
	draft, err := pf.draft()
	require.NoError(t, err)
	assert.Equal(t, "Morning", draft.Title)
	assert.Equal(t, 3, draft.TotalDays)
	assert.Equal(t, domain.MustDate("2024-01-01"), *draft.StartDate)
	assert.Equal(t, domain.MustTimeOfDay("04:00"), draft.RolloverOffset)
	require.Len(t, draft.Routine, 2)
	assert.Nil(t, draft.Routine[0].Time)
	assert.Equal(t, "07:00", draft.Routine[1].Time.String())
}

func TestCalendarStrip(t *testing.T) {
	got := calendarStrip([]domain.DayCategory{domain.DayPerfect, domain.DayNone, domain.DayMid, domain.DayLow, domain.DayHigh})
	assert.Equal(t, "#.+-*", got)
}

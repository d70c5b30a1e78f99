package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/scoremigrate/internal/core/migration"
	"github.com/satishbabariya/scoremigrate/internal/core/syscat"
)

func plain(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	pterm.DisableStyling()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr := Out, Err
	Out, Err = out, errOut
	t.Cleanup(func() {
		Out, Err = prevOut, prevErr
		pterm.EnableStyling()
	})
	return out, errOut
}

func sampleReport() *migration.Report {
	return &migration.Report{
		RunID:   "run-1",
		Dialect: "sqlite",
		Grains: []migration.GrainResult{
			{Grain: "scoresys", Version: "1.0", Outcome: migration.Skipped, State: syscat.Ready},
			{Grain: "shop", Version: "1.2", Outcome: migration.Migrated, State: syscat.Ready, Statements: 7, Elapsed: 1500 * time.Microsecond},
			{Grain: "crm", Version: "2.0", Outcome: migration.Failed, State: syscat.Error, Statements: 1, Err: "create-view: not supported"},
		},
	}
}

func TestReportRows(t *testing.T) {
	plain(t)
	rows := ReportRows(sampleReport())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"shop", "1.2", "migrated", "READY", "7", "2ms"}, rows[1])
	assert.Equal(t, "failed", rows[2][2])
	assert.Equal(t, "ERROR", rows[2][3])
}

func TestPrintReport(t *testing.T) {
	out, errOut := plain(t)
	require.NoError(t, PrintReport(sampleReport()))
	assert.Contains(t, out.String(), "shop")
	assert.Contains(t, out.String(), "1 migrated, 1 skipped, 0 locked, 1 failed (8 DDL statements)")
	assert.Contains(t, errOut.String(), "crm: create-view: not supported")
}

func TestGrainRows(t *testing.T) {
	plain(t)
	rows := GrainRows([]syscat.GrainRow{
		{Name: "shop", Version: "1.2", Length: 120, Checksum: "0a1b2c3d", State: syscat.Locked, Message: "held"},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"shop", "1.2", "LOCKED", "0a1b2c3d", "120", "", "held"}, rows[0])
}

func TestRenderMarkdown(t *testing.T) {
	plain(t)
	out, err := RenderMarkdown(sampleReport().Markdown())
	require.NoError(t, err)
	assert.Contains(t, out, "shop")
	assert.Contains(t, out, "Failures")
}

func TestRenderTable(t *testing.T) {
	plain(t)
	out, err := RenderTable([]string{"A", "B"}, [][]string{{"1", "2"}})
	require.NoError(t, err)
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "2")
}

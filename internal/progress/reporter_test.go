package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"
)

func sampleRows(valid bool) []Row {
	return []Row{
		{Path: "bin/paper.jar", Valid: true, Source: "https://example.invalid/paper.jar"},
		{Path: "plugins/worldedit.jar", Valid: valid, Source: "https://example.invalid/worldedit.jar"},
	}
}

// TestPlainReporter_AppendsSnapshots keeps every table without escape sequences.
func TestPlainReporter_AppendsSnapshots(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	reporter := NewPlainReporter(&out)
	require.NoError(t, reporter.Report(sampleRows(false)))
	require.NoError(t, reporter.Report(sampleRows(true)))

	text := out.String()
	require.Equal(t, text, ansi.Strip(text))
	require.Contains(t, text, "Artifacts ready: 1/2")
	require.Contains(t, text, "Artifacts ready: 2/2")
	require.Contains(t, text, "  bin/paper.jar          OK\n")
	require.Contains(t, text, "  plugins/worldedit.jar  https://example.invalid/worldedit.jar\n")
}

// TestTerminalReporter_RedrawsInPlace moves the cursor up over the previous table.
func TestTerminalReporter_RedrawsInPlace(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	reporter := NewTerminalReporter(&out)
	require.NoError(t, reporter.Report(sampleRows(false)))
	require.NotContains(t, out.String(), ansi.CursorUp(3))

	out.Reset()
	require.NoError(t, reporter.Report(sampleRows(true)))
	require.True(t, strings.HasPrefix(out.String(), ansi.CursorUp(3)))
	require.Equal(t, 3, strings.Count(out.String(), ansi.EraseEntireLine))
	require.Contains(t, ansi.Strip(out.String()), "Artifacts ready: 2/2")
}

// TestTerminalReporter_CutsWideRows keeps every line on one terminal row so the
// cursor returns to the top of the previous table.
func TestTerminalReporter_CutsWideRows(t *testing.T) {
	t.Parallel()

	const width = 80

	rows := []Row{
		{Path: "/srv/minecraft/bin/paper.jar", Valid: true},
		{
			Path:   "/srv/minecraft/plugins/geyser.jar",
			Source: "https://cdn.modrinth.com/data/wKkoqHrH/versions/Mx8tuUrH/Geyser-Spigot-2.4.2-b693.jar",
		},
	}

	var out bytes.Buffer

	reporter := NewTerminalReporter(&out, WithWidth(func() int { return width }))
	require.NoError(t, reporter.Report(rows))

	for line := range strings.SplitSeq(strings.TrimSuffix(out.String(), "\n"), "\n") {
		require.LessOrEqual(t, ansi.StringWidth(line), width)
	}

	require.Contains(t, ansi.Strip(out.String()), Ellipsis)

	out.Reset()
	require.NoError(t, reporter.Report(rows))
	require.True(t, strings.HasPrefix(out.String(), ansi.CursorUp(3)))
}

// TestTerminalReporter_UnknownWidthKeepsRows leaves lines intact when the width is unknown.
func TestTerminalReporter_UnknownWidthKeepsRows(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	reporter := NewTerminalReporter(&out, WithWidth(func() int { return 0 }))
	require.NoError(t, reporter.Report(sampleRows(false)))
	require.Contains(t, ansi.Strip(out.String()), "https://example.invalid/worldedit.jar")
	require.NotContains(t, ansi.Strip(out.String()), Ellipsis)
}

package sinks

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dirgather/internal/progress"
)

func counter(c progress.Category, consumed int64, total int64, finished bool) progress.Counter {
	ctr := progress.Counter{Category: c, Consumed: consumed, Finished: finished}
	if total > 0 {
		ctr.Total = &total
	}
	return ctr
}

func TestTerminalDisplayRefreshAlwaysDraws(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := NewTerminalDisplay(TerminalConfig{
		Out:            &buf,
		Categories:     progress.EdgeCategories,
		RedrawInterval: time.Hour,
		BarWidth:       10,
	})

	require.NoError(t, d.Update(counter(progress.CategoryEdgeCompute, 1, 10, false)))
	require.NoError(t, d.Update(counter(progress.CategoryEdgeCompute, 2, 10, false)))
	require.NoError(t, d.Refresh(counter(progress.CategoryEdgeCompute, 10, 10, true)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "second update is throttled; refresh is not")
	require.Contains(t, lines[0], "1/10")
	require.Contains(t, lines[1], "10/10")
	require.Contains(t, lines[1], "##########")
	require.Contains(t, lines[1], "done")
	require.Contains(t, lines[1], progress.CategoryEdgeCompute.Label())
}

func TestTerminalDisplayWithoutTotal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := NewTerminalDisplay(TerminalConfig{Out: &buf, Categories: []progress.Category{progress.CategoryShareEnum}})
	require.NoError(t, d.Refresh(counter(progress.CategoryShareEnum, 7, 0, false)))
	out := buf.String()
	require.Contains(t, out, " 7")
	require.NotContains(t, out, "/")
	require.NoError(t, d.Close())
}

func TestTerminalDisplayOvershootRendersFull(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := NewTerminalDisplay(TerminalConfig{Out: &buf, Categories: progress.EdgeCategories, BarWidth: 4})
	require.NoError(t, d.Refresh(counter(progress.CategoryEdgeUpload, 12, 5, true)))
	require.Contains(t, buf.String(), "[####]")
	require.Contains(t, buf.String(), "100%")
}

func TestTerminalDisplayInteractiveRedrawsBlock(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := NewTerminalDisplay(TerminalConfig{Out: &buf, Categories: progress.EdgeCategories, BarWidth: 4})
	d.interactive = true

	require.NoError(t, d.Refresh(counter(progress.CategoryEdgeCompute, 1, 2, false)))
	require.NoError(t, d.Refresh(counter(progress.CategoryEdgeUpload, 2, 2, true)))

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "\x1b[2A"), "second draw moves back over the block")
	require.Equal(t, 4, strings.Count(out, "\x1b[2K"))
	require.NoError(t, d.Close())
}

func TestTerminalDisplayCloseFlushesThrottledRows(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	categories := []progress.Category{progress.CategoryShareEnum, progress.CategoryEdgeCompute}
	d := NewTerminalDisplay(TerminalConfig{
		Out:            &buf,
		Categories:     categories,
		RedrawInterval: time.Hour,
		BarWidth:       10,
	})
	agg := progress.NewAggregator(progress.AggregatorConfig{Categories: categories}, d)
	for i := 0; i < 5; i++ {
		agg.Handle(progress.Advance(progress.CategoryShareEnum, 10, 50))
	}
	require.Equal(t, 1, strings.Count(buf.String(), "\n"), "only the first update passes the limiter")
	require.Contains(t, buf.String(), "10/50")

	require.NoError(t, d.Close())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "50/50")
	require.Contains(t, lines[1], "100%")
	require.NotContains(t, buf.String(), progress.CategoryEdgeCompute.Label(), "untouched categories are not printed")

	require.NoError(t, d.Close())
	require.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 2, "nothing left to flush")
}

func TestTerminalDisplayCloseSkipsRowsAlreadyPrinted(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := NewTerminalDisplay(TerminalConfig{Out: &buf, Categories: progress.EdgeCategories, RedrawInterval: time.Hour})
	require.NoError(t, d.Refresh(counter(progress.CategoryEdgeCompute, 4, 4, true)))
	before := buf.String()
	require.NoError(t, d.Close())
	require.Equal(t, before, buf.String())
}

func TestTerminalDisplayDefaultsToStdout(t *testing.T) {
	t.Parallel()

	d := NewTerminalDisplay(TerminalConfig{Categories: progress.EdgeCategories})
	require.Same(t, os.Stdout, d.out)
}

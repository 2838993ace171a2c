package sinks

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/dirgather/internal/progress"
)

const (
	defaultRedrawInterval = 100 * time.Millisecond
	defaultBarWidth       = 30
	labelWidth            = 26
)

// TerminalConfig configures a TerminalDisplay.
//   - Out: destination, stdout when nil.
//   - Categories: rows in display order; only these are drawn.
//   - RedrawInterval: minimum spacing between throttled redraws.
//   - BarWidth: characters in each bar.
type TerminalConfig struct {
	Out            io.Writer
	Categories     []progress.Category
	RedrawInterval time.Duration
	BarWidth       int
}

// TerminalDisplay draws one bar per active category. On a terminal the block
// is redrawn in place; otherwise each redraw appends plain lines.
type TerminalDisplay struct {
	out         io.Writer
	interactive bool
	order       []progress.Category
	width       int
	limiter     *rate.Limiter

	label lipgloss.Style
	fill  lipgloss.Style
	empty lipgloss.Style
	done  lipgloss.Style

	mu       sync.Mutex
	counters map[progress.Category]progress.Counter
	// dirty marks categories whose latest counter has not been printed yet.
	dirty map[progress.Category]bool
	drawn int
}

// NewTerminalDisplay builds a TerminalDisplay.
func NewTerminalDisplay(cfg TerminalConfig) *TerminalDisplay {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	interval := cfg.RedrawInterval
	if interval <= 0 {
		interval = defaultRedrawInterval
	}
	width := cfg.BarWidth
	if width <= 0 {
		width = defaultBarWidth
	}
	r := lipgloss.NewRenderer(out)
	return &TerminalDisplay{
		out:         out,
		interactive: isTerminal(out),
		order:       append([]progress.Category(nil), cfg.Categories...),
		width:       width,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		label:       r.NewStyle().Width(labelWidth),
		fill:        r.NewStyle().Foreground(lipgloss.Color("#20B9B4")),
		empty:       r.NewStyle().Foreground(lipgloss.Color("#2C4A54")),
		done:        r.NewStyle().Foreground(lipgloss.Color("#2CD7C7")).Bold(true),
		counters:    make(map[progress.Category]progress.Counter),
		dirty:       make(map[progress.Category]bool),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Update stores c and redraws when the limiter allows.
func (d *TerminalDisplay) Update(c progress.Counter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters[c.Category] = c
	d.dirty[c.Category] = true
	if !d.limiter.Allow() {
		return nil
	}
	return d.draw(c.Category)
}

// Refresh stores c and always redraws.
func (d *TerminalDisplay) Refresh(c progress.Counter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters[c.Category] = c
	d.dirty[c.Category] = true
	return d.draw(c.Category)
}

// Close draws the final state once more and ends the block with a newline
// boundary so later output does not overwrite it. Without a terminal it
// prints one line per category whose last update was throttled.
func (d *TerminalDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.interactive {
		for _, c := range d.order {
			if !d.dirty[c] {
				continue
			}
			if err := d.draw(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := d.draw(""); err != nil {
		return err
	}
	d.drawn = 0
	return nil
}

func (d *TerminalDisplay) draw(changed progress.Category) error {
	var b strings.Builder
	if d.interactive {
		if d.drawn > 0 {
			fmt.Fprintf(&b, "\x1b[%dA", d.drawn)
		}
		for _, c := range d.order {
			ctr, ok := d.counters[c]
			if !ok {
				ctr = progress.Counter{Category: c}
			}
			b.WriteString("\x1b[2K")
			b.WriteString(d.row(ctr))
			b.WriteByte('\n')
		}
		d.drawn = len(d.order)
		clear(d.dirty)
	} else {
		ctr, ok := d.counters[changed]
		if !ok {
			return nil
		}
		b.WriteString(d.row(ctr))
		b.WriteByte('\n')
		delete(d.dirty, changed)
	}
	if _, err := io.WriteString(d.out, b.String()); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

func (d *TerminalDisplay) row(c progress.Counter) string {
	filled := int(c.Fraction() * float64(d.width))
	if filled > d.width {
		filled = d.width
	}
	bar := d.fill.Render(strings.Repeat("#", filled)) + d.empty.Render(strings.Repeat("-", d.width-filled))
	status := fmt.Sprintf("%3.0f%% %s", c.Fraction()*100, c.String())
	if c.Finished {
		status = d.done.Render(status + " done")
	}
	return fmt.Sprintf("%s [%s] %s", d.label.Render(c.Category.Label()), bar, status)
}

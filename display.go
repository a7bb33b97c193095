package main

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("208")).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func renderBanner(cfg *Config, target time.Time, hasSecret bool) string {
	lines := []string{
		titleStyle.Render(T("app_title")),
		"",
		T("banner_target", target.Format("2006-01-02 15:04:05 MST")),
		T("banner_login_url", cfg.LoginURL),
		T("banner_retries", cfg.MaxRetryCount),
	}
	if hasSecret {
		lines = append(lines, T("banner_payment_on"))
	} else {
		lines = append(lines, T("banner_payment_off"))
	}
	if cfg.DryRun {
		lines = append(lines, noteStyle.Render(T("dry_run_mode")))
	}
	if cfg.DebugMode {
		lines = append(lines, noteStyle.Render(T("debug_mode")))
	}
	return bannerStyle.Render(strings.Join(lines, "\n"))
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// countdown renders the wait phase as a bar that fills up towards the
// refresh cutoff. It is fed from the scheduler's refresh hook.
type countdown struct {
	progress *mpb.Progress
	bar      *mpb.Bar
	total    time.Duration
	cutoff   time.Duration
	// remaining is read by the render goroutine.
	remaining atomic.Int64
}

func newCountdown(out io.Writer, cutoff time.Duration) *countdown {
	return &countdown{
		progress: mpb.New(mpb.WithOutput(out), mpb.WithWidth(48)),
		cutoff:   cutoff,
	}
}

func (c *countdown) Update(remaining time.Duration) {
	c.remaining.Store(int64(remaining))
	if c.bar == nil {
		if remaining-c.cutoff < time.Second {
			return
		}
		c.total = remaining - c.cutoff
		label := T("countdown_label")
		c.bar = c.progress.New(int64(c.total/time.Second),
			mpb.BarStyle(),
			mpb.PrependDecorators(
				decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DindentRight}),
			),
			mpb.AppendDecorators(
				decor.Any(func(decor.Statistics) string {
					return time.Duration(c.remaining.Load()).Round(time.Second).String()
				}),
			),
		)
	}
	elapsed := c.total - (remaining - c.cutoff)
	if elapsed > c.total {
		elapsed = c.total
	}
	c.bar.SetCurrent(int64(elapsed / time.Second))
}

// Done finishes the bar so the following log lines are not interleaved.
func (c *countdown) Done() {
	if c.bar != nil {
		c.bar.SetCurrent(int64(c.total / time.Second))
	}
	c.progress.Shutdown()
}

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/12101111/nettest/internal/runner"
	"github.com/12101111/nettest/internal/stats"
	"github.com/12101111/nettest/internal/units"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	lineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// printReport writes the statistics of res. It returns stats.ErrAllFailed
// when nothing succeeded.
func printReport(w io.Writer, title string, res *runner.Result, styled bool) error {
	if res == nil || res.Transmitted() == 0 {
		return nil
	}

	sum, err := stats.Summarize(res.Measurements, res.Failures)
	if err != nil {
		return err
	}

	header := fmt.Sprintf("--- %s %s statistics ---", title, res.Task)
	lines := sum.Lines()
	note := medianNote(sum)

	if !styled {
		fmt.Fprintln(w, header)
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
		return nil
	}

	body := make([]string, 0, len(lines)+2)
	body = append(body, titleStyle.Render(header))
	for _, l := range lines {
		body = append(body, lineStyle.Render(l))
	}
	body = append(body, noteStyle.Render(note))
	fmt.Fprintln(w, boxStyle.Render(strings.Join(body, "\n")))
	return nil
}

func medianNote(sum *stats.Summary) string {
	if sum.Time != nil {
		return fmt.Sprintf("median %.3f ms", units.Millis(sum.Time.Median))
	}
	return fmt.Sprintf("median %.3f Mbps over %d runs", sum.Speed.Median, sum.Speed.Runs)
}

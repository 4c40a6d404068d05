package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
	modeStyles = map[string]lipgloss.Style{
		"kernel": lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		"user":   lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
	}
)

// WriteText renders a document as a human readable report.
func WriteText(w io.Writer, d Document) error {
	var b strings.Builder

	fmt.Fprintln(&b, titleStyle.Render("Contention analysis "+d.ID))
	fmt.Fprintln(&b, strings.Repeat("═", 60))
	fmt.Fprintf(&b, "samples: %d  threads: %d  runs: %d  windows: %d  contention groups: %d\n",
		d.SampleCount, d.ThreadCount, d.RunCount, len(d.Windows), len(d.ContentionGroups))
	fmt.Fprintf(&b, "degrees of freedom: %s  direction: %d  duration threshold: %s\n\n",
		depth(d.Options.DegreesOfFreedom), d.Options.Direction, threshold(d.Options.DurationThreshold))

	if len(d.Windows) == 0 {
		fmt.Fprintln(&b, "No contention window found.")
		_, err := io.WriteString(w, b.String())
		return err
	}

	rows := make([][]string, 0, len(d.Windows))
	for _, win := range d.Windows {
		rows = append(rows, []string{
			strconv.Itoa(win.Index),
			formatTime(win.Summary.Begin),
			formatTime(win.Summary.End),
			formatTime(win.Summary.Duration),
			strconv.Itoa(win.Summary.Threads),
			strconv.Itoa(win.Summary.Runs),
			groupCell(win.Kernel),
			groupCell(win.User),
		})
	}
	fmt.Fprintln(&b, newTable([]string{"WINDOW", "BEGIN", "END", "DURATION", "THREADS", "RUNS", "KERNEL", "USER"}, rows))

	for _, g := range d.ContentionGroups {
		fmt.Fprintln(&b)
		mode := g.Mode.String()
		fmt.Fprintf(&b, "%s %s in window %d: %s to %s, %d threads, %d processes\n",
			titleStyle.Render(fmt.Sprintf("Contention group %d", g.ID)),
			modeStyles[mode].Render(strings.ToUpper(mode)),
			g.Window,
			formatTime(g.Summary.Begin),
			formatTime(g.Summary.End),
			g.Summary.Threads,
			g.Summary.Processes,
		)
		rows := make([][]string, 0, len(g.CallStacks))
		for _, s := range g.CallStacks {
			rows = append(rows, []string{
				formatTime(s.Begin),
				formatTime(s.End),
				strings.Join(s.Threads, ","),
				strings.Join(s.Processes, ","),
				s.FunctionCallStack,
			})
		}
		fmt.Fprintln(&b, newTable([]string{"BEGIN", "END", "THREADS", "PROCESSES", "CALL STACK"}, rows))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
}

func groupCell(g Group) string {
	if g.Runs == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d runs >= %.2f, %d groups", g.Retained, g.Runs, g.Threshold, len(g.ContentionGroups))
}

func formatTime(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 6, 64)
}

func depth(dof int) string {
	if dof < 0 {
		return "unbounded"
	}
	return strconv.Itoa(dof)
}

func threshold(t int) string {
	if t < 0 {
		return "mean"
	}
	return strconv.Itoa(t)
}

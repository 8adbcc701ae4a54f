package main

import (
	"fmt"
	"io"
	"sort"

	"acolyte/internal/agent"
	"acolyte/internal/scheduler"
	"acolyte/internal/store"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#B00020")).
			Padding(0, 1)
	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#B00020")).
			Padding(0, 1)
)

// errorBanner renders a fatal error for the terminal.
func errorBanner(err error) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		bannerStyle.Render("acolyte stopped"),
		detailStyle.Render(err.Error()),
	)
}

func renderStatus(out io.Writer, statuses []scheduler.ImperativeStatus) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Imperative", "Active", "", "Impulse", "Priority", "Reason"})
	if len(statuses) == 0 {
		tw.AppendRow(table.Row{"(none)", "", "", "", "", ""})
	}
	for _, st := range statuses {
		active := "no"
		if st.Active.Met {
			active = "yes"
		}
		if len(st.Impulses) == 0 {
			tw.AppendRow(table.Row{st.Name, active, "", "", "", st.Active.Reason})
			continue
		}
		for i, imp := range st.Impulses {
			name, act := st.Name, active
			if i > 0 {
				name, act = "", ""
			}
			mark := " "
			switch {
			case imp.Running:
				mark = "*"
			case imp.Eligible.Met:
				mark = "+"
			}
			tw.AppendRow(table.Row{name, act, mark, imp.Name, imp.Priority.String(), imp.Eligible.Reason})
		}
	}
	tw.Render()
}

func renderHistory(out io.Writer, entries []store.Entry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Beat", "Event", "Imperative", "Impulse", "Aborted", "Detail", "At"})
	for _, e := range entries {
		aborted := ""
		if e.Aborted {
			aborted = "yes"
		}
		tw.AppendRow(table.Row{e.Beat, e.Kind, e.Imperative, e.Impulse, aborted, e.Detail, e.At.Format("15:04:05.000")})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d events", len(entries))})
	tw.Render()
}

func renderSummary(out io.Writer, a *agent.Agent, journal *store.Journal) {
	m := a.Coordinator().GetMetrics()
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRow(table.Row{"beats", a.Scheduler().Beats()})
	tw.AppendRow(table.Row{"mode", a.Scheduler().Mode().String()})
	tw.AppendRow(table.Row{"actions queued", m.Queued})
	tw.AppendRow(table.Row{"actions succeeded", m.Succeeded})
	tw.AppendRow(table.Row{"actions failed", m.Failed})
	tw.AppendRow(table.Row{"actions cancelled", m.Cancelled})
	tw.AppendRow(table.Row{"reloads", a.Reloads()})
	if cur := a.CurrentMotivation(); cur != nil {
		tw.AppendRow(table.Row{"motivation", cur.Name()})
	}
	tw.AppendRow(table.Row{"sequence done", a.SequenceDone()})

	if journal != nil {
		if counts, err := journal.KindCounts(journal.RunID()); err == nil {
			kinds := make([]string, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				tw.AppendRow(table.Row{"events " + k, counts[k]})
			}
		}
	}
	tw.Render()
}

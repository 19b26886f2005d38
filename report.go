package trackerup

import (
	"fmt"
	"io"
	"strings"

	"github.com/aria2tools/trackerup/aria2rpc"
	"github.com/aria2tools/trackerup/source"
	"github.com/aria2tools/trackerup/tracker"
	"github.com/aria2tools/trackerup/updater"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// newTable returns a table writer rendering to w in the style shared by every
// report.
func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)

	// Footers carry totals and result names, keep them as written.
	t.Style().Format.Footer = text.FormatDefault

	return t
}

// printSources lists the configured sources with their retry budget.
func printSources(w io.Writer, descs []source.Descriptor) {
	t := newTable(w, "Tracker sources")
	t.AppendHeader(table.Row{"#", "URL", "Timeout", "Attempts", "Budget"})
	for i, desc := range descs {
		t.AppendRow(table.Row{
			i + 1, desc.URL, desc.Timeout, desc.Attempts(),
			desc.Budget(),
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d sources", len(descs))})
	t.Render()
}

// printConnection shows the result of an RPC connectivity check.
func printConnection(w io.Writer, status *aria2rpc.ConnectionStatus) {
	t := newTable(w, "aria2 RPC connection")
	t.AppendRow(table.Row{"URL", status.URL})
	t.AppendRow(table.Row{"Version", status.Version})
	t.AppendRow(table.Row{
		"Features", strings.Join(status.EnabledFeatures, ", "),
	})
	t.AppendRow(table.Row{"Trackers", status.Trackers})
	t.Render()
}

// sourceState renders the fetch state of a source for the summary.
func sourceState(src tracker.SourceReport) string {
	if src.Err != nil {
		return "failed: " + src.Err.Error()
	}

	return "ok"
}

// printSourceReport lists what every source contributed to the merge.
func printSourceReport(w io.Writer, report *tracker.Report) {
	t := newTable(w, "Sources")
	t.AppendHeader(table.Row{"URL", "State", "Valid", "Rejected", "New"})
	for _, src := range report.Sources {
		t.AppendRow(table.Row{
			src.URL, sourceState(src), src.Valid, src.Rejected,
			src.Added,
		})
	}
	t.AppendFooter(table.Row{
		"Existing", report.Existing, "", "", len(report.Added),
	})
	t.Render()
}

// printDryRun shows what an update would have written.
func printDryRun(w io.Writer, merged *tracker.Set, report *tracker.Report) {
	printSourceReport(w, report)

	t := newTable(w, "Dry run: trackers that would be added")
	t.AppendHeader(table.Row{"#", "Tracker"})
	for i, addr := range report.Added {
		t.AppendRow(table.Row{i + 1, addr})
	}
	t.AppendFooter(table.Row{"Total", merged.Len()})
	t.Render()
}

// printOutcome shows the merge and the per channel result of an update.
func printOutcome(w io.Writer, merged *tracker.Set, report *tracker.Report,
	outcome *updater.Outcome) {

	printSourceReport(w, report)

	t := newTable(w, fmt.Sprintf("Update (%v mode)", outcome.Mode))
	t.AppendHeader(table.Row{"Channel", "Status", "Detail"})
	for _, c := range outcome.Channels {
		var detail string
		switch {
		case c.Err != nil:
			detail = c.Err.Error()

		case c.Fallback:
			detail = "fallback"
		}
		t.AppendRow(table.Row{c.Channel, c.Status, detail})
	}
	t.AppendFooter(table.Row{
		"Result", outcome.Result,
		fmt.Sprintf("%d trackers, %d new", merged.Len(),
			len(report.Added)),
	})
	t.Render()
}

package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/keygate/keygate/internal/apikey"
)

// TableFormatter renders results as an ASCII table, or a Markdown table when
// Markdown is set.
type TableFormatter struct {
	Markdown bool
}

// FormatKeys renders key records as a table.
func (f *TableFormatter) FormatKeys(keys []apikey.Record) (string, error) {
	t := f.newWriter()
	t.AppendHeader(table.Row{"ID", "Name", "Prefix", "Status", "Created"})

	active := 0
	for _, view := range viewKeys(keys) {
		if view.Status == "active" {
			active++
		}
		t.AppendRow(table.Row{
			view.ID,
			view.Name,
			view.Prefix + "…",
			view.Status,
			view.CreatedAt.Format(time.RFC3339),
		})
	}

	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d/%d active", active, len(keys)), ""})
	return f.render(t), nil
}

// FormatIssued renders a newly issued key.
func (f *TableFormatter) FormatIssued(issued apikey.Issued) (string, error) {
	view := ViewKey(issued.Record)

	t := f.newWriter()
	t.AppendRows([]table.Row{
		{"ID", view.ID},
		{"User", view.UserID},
		{"Name", view.Name},
		{"Created", view.CreatedAt.Format(time.RFC3339)},
		{"Key", issued.Key},
	})
	rendered := f.render(t)
	rendered += "\nStore this key now; it cannot be shown again.\n"
	return rendered, nil
}

// FormatLimits renders the limiter settings.
func (f *TableFormatter) FormatLimits(limits Limits) (string, error) {
	t := f.newWriter()
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"window", (time.Duration(limits.WindowMs) * time.Millisecond).String()},
		{"max_requests", limits.MaxRequests},
		{"identity_header", limits.IdentityHeader},
		{"sweep_mode", limits.SweepMode},
		{"sweep_interval", limits.SweepInterval.String()},
		{"shards", limits.Shards},
	})
	return f.render(t), nil
}

func (f *TableFormatter) newWriter() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) render(t table.Writer) string {
	if f.Markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}

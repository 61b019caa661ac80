package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/openmined/deltasync/internal/delta"
	"github.com/openmined/deltasync/internal/engine"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

func outputFlag(cmd *cobra.Command) (outputFormat, error) {
	value, _ := cmd.Flags().GetString("output")
	switch f := outputFormat(value); f {
	case outputTable, outputJSON, outputYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", value)
	}
}

// render writes v as json or yaml, or calls table for the table format.
func render(w io.Writer, format outputFormat, v any, table func(io.Writer) error) error {
	switch format {
	case outputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return table(w)
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	if hash == "" {
		return "-"
	}
	return hash
}

func formatSize(e *delta.DeltaEntry) string {
	if e == nil {
		return "-"
	}
	if e.IsDir {
		return "dir"
	}
	return humanize.Bytes(uint64(max(e.Size, 0)))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func entryAction(e *delta.DeltaEntry) string {
	if e == nil {
		return "-"
	}
	return e.Action.String()
}

func writeEntries(w io.Writer, entries []delta.DeltaEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No local changes.")
		return err
	}

	table := newTable(w, "Path", "Action", "Size", "Modified", "Hash")
	for _, e := range entries {
		table.Append([]string{e.Path, e.Action.String(), formatSize(&e), formatTime(e.Modified), shortHash(e.Hash)})
	}
	table.Render()
	return nil
}

func writePlan(w io.Writer, p *engine.Plan) error {
	if p.Empty() {
		_, err := fmt.Fprintf(w, "Nothing to do (%d local, %d remote changes).\n", len(p.Local), len(p.Remote))
		return err
	}

	table := newTable(w, "Path", "Decision", "Local", "Remote", "Size")
	for _, m := range p.Merged {
		size := m.Local
		if size == nil {
			size = m.Remote
		}
		decision := m.Action.String()
		if m.HasConflict {
			decision += " (!)"
		}
		table.Append([]string{m.Path, decision, entryAction(m.Local), entryAction(m.Remote), formatSize(size)})
	}
	table.Render()

	return writeSummary(w, p.Summary())
}

func writeSummary(w io.Writer, summary map[delta.MergedAction]int) error {
	actions := make([]delta.MergedAction, 0, len(summary))
	for a := range summary {
		actions = append(actions, a)
	}
	slices.Sort(actions)

	line := ""
	for i, a := range actions {
		if i > 0 {
			line += ", "
		}
		line += a.String() + "=" + strconv.Itoa(summary[a])
	}
	_, err := fmt.Fprintln(w, "\n"+line)
	return err
}

func writeResult(w io.Writer, res *engine.Result) error {
	if _, err := fmt.Fprintf(w, "applied=%d skipped=%d failed=%d cursor_saved=%t\n",
		res.Applied, res.Skipped, len(res.Failed), res.CursorSaved); err != nil {
		return err
	}
	if len(res.Failed) == 0 {
		return nil
	}

	table := newTable(w, "Path", "Decision", "Error")
	for _, f := range res.Failed {
		table.Append([]string{f.Path, f.Action.String(), f.Error})
	}
	table.Render()
	return nil
}

func writeStates(w io.Writer, states []*delta.SyncState) error {
	if len(states) == 0 {
		_, err := fmt.Fprintln(w, "No tracked paths.")
		return err
	}

	table := newTable(w, "Path", "Status", "Local Hash", "Remote Hash", "Last Sync", "Version")
	for _, st := range states {
		lastSync := "-"
		if st.LastSync != nil {
			lastSync = formatTime(*st.LastSync)
		}
		table.Append([]string{
			st.LocalPath,
			st.Status.String(),
			shortHash(st.LocalHash),
			shortHash(st.RemoteHash),
			lastSync,
			strconv.FormatInt(st.Version, 10),
		})
	}
	table.Render()
	return nil
}

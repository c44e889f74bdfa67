package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	formatAuto  = "auto"
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func parseFormat(s string) (string, error) {
	switch s {
	case "", formatAuto:
		return formatAuto, nil
	case formatTable, formatJSON, formatYAML:
		return s, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want auto, table, json or yaml)", s)
	}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// tableFunc lays out values as a header and rows.
type tableFunc[T any] func(items []T) (table.Row, []table.Row)

// render writes items in the selected format. auto renders a table on a
// terminal and JSON otherwise.
func render[T any](w io.Writer, format string, items []T, layout tableFunc[T]) error {
	if format == formatAuto {
		format = formatJSON
		if isTTY(w) {
			format = formatTable
		}
	}

	switch format {
	case formatTable:
		if layout == nil {
			return writeJSON(w, items)
		}
		header, rows := layout(items)
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(header)
		t.AppendRows(rows)
		t.AppendFooter(table.Row{fmt.Sprintf("%d items", len(items))})
		t.Render()
		return nil
	case formatYAML:
		return writeYAML(w, items)
	default:
		return writeJSON(w, items)
	}
}

// renderOne writes a single value; tables show it as one row.
func renderOne[T any](w io.Writer, format string, item *T, layout tableFunc[T]) error {
	if format == formatJSON || (format == formatAuto && !isTTY(w)) {
		return writeJSON(w, item)
	}
	if format == formatYAML {
		return writeYAML(w, item)
	}
	return render(w, format, []T{*item}, layout)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML goes through JSON so field names follow the json tags.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

package cli

import (
	"encoding/json"
	"io"

	"github.com/olekukonko/tablewriter"
)

// Output formats of the --format flag.
const (
	formatTable = "table"
	formatJSON  = "json"
)

// render writes v as indented JSON or rows as a table, depending on the
// --format flag.
func (a *app) render(w io.Writer, v any, header []string, rows [][]string) error {
	if a.flags.format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	renderTable(w, header, rows)
	return nil
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.AppendBulk(rows)
	tw.Render()
}

// fieldRows turns name/value pairs into the rows of a FIELD/VALUE table.
func fieldRows(pairs ...string) [][]string {
	rows := make([][]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		rows = append(rows, []string{pairs[i], pairs[i+1]})
	}
	return rows
}

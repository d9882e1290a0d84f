package cli

import (
	"fmt"
	"io"

	"github.com/malbeclabs/assetbot/pkg/store"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}

func renderResultSet(w io.Writer, rs *store.ResultSet) {
	table := newTable(w, rs.Columns)
	for _, row := range rs.Rows {
		cells := make([]string, len(rs.Columns))
		for i, col := range rs.Columns {
			cells[i] = cellText(row[col])
		}
		table.Append(cells)
	}
	table.Render()
	fmt.Fprintf(w, "(%d rows)\n", rs.Len())
}

func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("<binary %d bytes>", len(val))
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

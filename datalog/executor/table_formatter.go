package executor

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/janus-live/datalog"
)

// TableFormatter provides utilities for formatting relations as tables
type TableFormatter struct {
	// MaxWidth is the maximum width for a column
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a new table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatRelation formats the tuples of a relation as a markdown table.
// Columns are named after the relation and position.
func (tf *TableFormatter) FormatRelation(resource datalog.ResourceID, tuples []datalog.Tuple) string {
	if len(tuples) == 0 {
		return "_Empty relation_"
	}

	arity := 0
	for _, t := range tuples {
		arity = max(arity, len(t))
	}
	headers := make([]string, arity)
	for i := range headers {
		headers[i] = fmt.Sprintf("%s.%d", resource.Name(), i)
	}

	rows := make([][]string, len(tuples))
	for i, t := range tuples {
		row := make([]string, arity)
		for j, v := range t {
			row[j] = tf.formatValue(v)
		}
		rows[i] = row
	}
	return tf.formatTable(headers, rows)
}

// FormatDelta formats a step's changes as a markdown table
func (tf *TableFormatter) FormatDelta(delta Delta) string {
	if len(delta) == 0 {
		return "_No changes_"
	}
	rows := make([][]string, len(delta))
	for i, c := range delta {
		rows[i] = []string{
			fmt.Sprintf("%+d", c.Diff),
			tf.truncate(c.Resource.String()),
			tf.truncate(c.Tuple.String()),
		}
	}
	return tf.formatTable([]string{"diff", "relation", "tuple"}, rows)
}

// formatTable formats headers and rows as a markdown table
func (tf *TableFormatter) formatTable(headers []string, rows [][]string) string {
	tableString := &strings.Builder{}

	// Create alignment array with all columns using AlignNone for simple separators
	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)

	table.Header(headers)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", len(rows)))

	return tableString.String()
}

// formatValue converts a value to a string representation
func (tf *TableFormatter) formatValue(v datalog.Value) string {
	switch v.Type() {
	case datalog.IntegerType:
		n, _ := v.AsInteger()
		return fmt.Sprintf("%d", n)
	default:
		s, _ := v.AsSymbol()
		return tf.truncate(s)
	}
}

func (tf *TableFormatter) truncate(s string) string {
	if tf.MaxWidth > 0 && len(s) > tf.MaxWidth {
		return s[:tf.MaxWidth-len(tf.TruncateString)] + tf.TruncateString
	}
	return s
}

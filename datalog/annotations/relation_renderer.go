package annotations

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/query"
)

// RelationRenderer provides pretty-printing for relations, their changes and
// the diagnostics attached to source text
type RelationRenderer struct {
	useColor bool
}

// NewRelationRenderer creates a new relation renderer
func NewRelationRenderer(useColor bool) *RelationRenderer {
	return &RelationRenderer{useColor: useColor}
}

// RenderRelation renders a relation header with its tuple count
func (r *RelationRenderer) RenderRelation(resource datalog.ResourceID, tupleCount int) string {
	count := fmt.Sprintf("%d Tuples", tupleCount)
	if r.useColor {
		return fmt.Sprintf("%s%s%s%s",
			color.CyanString(resource.Name()),
			color.BlueString(" ("),
			color.MagentaString(count),
			color.BlueString(")"))
	}
	return fmt.Sprintf("%s (%s)", resource.Name(), count)
}

// RenderChange renders one tuple of a delta as "+ Name(...)" or "- Name(...)".
// Weights other than one are shown as a multiplier.
func (r *RelationRenderer) RenderChange(resource datalog.ResourceID, tuple datalog.Tuple, diff int64) string {
	sign, attr := "+", color.FgGreen
	if diff < 0 {
		sign, attr = "-", color.FgRed
	}
	text := sign + " " + resource.Name() + tuple.String()
	if diff > 1 || diff < -1 {
		text += fmt.Sprintf(" ×%d", abs(diff))
	}
	return r.colorize(text, attr)
}

// RenderDiagnostic renders a diagnostic against the source it was produced
// for: a header line, the offending source line with the span underlined,
// and one line per label.
func (r *RelationRenderer) RenderDiagnostic(path, src string, d *query.Diagnostic) string {
	var sb strings.Builder
	lines := strings.Split(src, "\n")

	sb.WriteString(fmt.Sprintf("%s:%s: %s: %s",
		path, d.Span.Start,
		r.colorize(d.Severity.String(), severityColor(d.Severity), color.Bold),
		d.Message))

	if line, ok := sourceLine(lines, d.Span.Start.Line); ok {
		gutter := fmt.Sprintf("%4d | ", d.Span.Start.Line+1)
		sb.WriteString("\n")
		sb.WriteString(r.colorize(gutter, color.FgBlue))
		sb.WriteString(line)
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat(" ", len(gutter)+d.Span.Start.Column))
		sb.WriteString(r.colorize(underline(d.Span, len(line)), severityColor(d.Severity)))
	}

	for _, l := range d.Labels {
		sb.WriteString(fmt.Sprintf("\n     = %s: %s",
			r.colorize(l.Span.Start.String(), color.FgBlue),
			l.Message))
	}
	return sb.String()
}

// RenderHint renders an inlay hint as the text it annotates followed by
// the hint contents
func (r *RelationRenderer) RenderHint(src string, h query.InlayHint) string {
	lines := strings.Split(src, "\n")
	text := ""
	if line, ok := sourceLine(lines, h.Span.Start.Line); ok && h.Span.Start.Line == h.Span.End.Line {
		from, to := clamp(h.Span.Start.Column, len(line)), clamp(h.Span.End.Column, len(line))
		text = line[from:to]
	}
	return fmt.Sprintf("%s %s%s",
		r.colorize(h.Span.Start.String(), color.FgBlue),
		text,
		r.colorize(h.Contents, color.Faint))
}

func (r *RelationRenderer) colorize(text string, attrs ...color.Attribute) string {
	if !r.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func severityColor(s query.Severity) color.Attribute {
	switch s {
	case query.SeverityError:
		return color.FgRed
	case query.SeverityWarning:
		return color.FgYellow
	case query.SeverityNote:
		return color.FgBlue
	default:
		return color.FgWhite
	}
}

// underline marks the span on its first line; multi-line spans run to the
// end of that line
func underline(s query.Span, lineLen int) string {
	end := lineLen
	if s.End.Line == s.Start.Line {
		end = clamp(s.End.Column, lineLen)
	}
	n := end - s.Start.Column
	if n < 1 {
		n = 1
	}
	return strings.Repeat("^", n)
}

func sourceLine(lines []string, n int) (string, bool) {
	if n < 0 || n >= len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[n], "\r"), true
}

func clamp(n, hi int) int {
	if n < 0 {
		return 0
	}
	if n > hi {
		return hi
	}
	return n
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

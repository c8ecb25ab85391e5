package query

import (
	"fmt"
	"strings"
)

// Severity of a diagnostic
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityNote:
		return "note"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Label points at a related location
type Label struct {
	Span    Span
	Message string
}

// Diagnostic is a problem found in source text. Diagnostics are data:
// they never abort evaluation.
type Diagnostic struct {
	Span     Span
	Severity Severity
	Message  string
	Labels   []Label
}

// Errorf builds an error-severity diagnostic
func Errorf(span Span, format string, args ...any) *Diagnostic {
	return &Diagnostic{Span: span, Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

// WithLabel returns a copy of d with an extra label
func (d *Diagnostic) WithLabel(span Span, message string) *Diagnostic {
	out := *d
	out.Labels = append(append([]Label(nil), d.Labels...), Label{Span: span, Message: message})
	return &out
}

func (d *Diagnostic) ItemSpan() Span { return d.Span }

func (d *Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Span.Start, d.Severity, d.Message)
}

func (d *Diagnostic) Key() string {
	var k keyWriter
	k.tag("diag")
	k.span(d.Span)
	k.tag(d.Severity.String())
	k.tag(d.Message)
	for _, l := range d.Labels {
		k.span(l.Span)
		k.tag(l.Message)
	}
	return k.String()
}

// InlayHint is a short annotation rendered inline at Span.End, such as the
// inferred type of a variable
type InlayHint struct {
	Span     Span
	Contents string
}

func (h InlayHint) Key() string {
	var k keyWriter
	k.tag("hint")
	k.span(h.Span)
	k.tag(h.Contents)
	return k.String()
}

func (h InlayHint) String() string {
	return h.Span.End.String() + " " + strings.TrimSpace(h.Contents)
}

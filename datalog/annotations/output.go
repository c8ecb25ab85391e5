package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &OutputFormatter{useColor: useColor, writer: w}
}

// NewPlainFormatter creates a formatter that never emits color codes
func NewPlainFormatter(w io.Writer) *OutputFormatter {
	f := NewOutputFormatter(w)
	f.useColor = false
	return f
}

// Handle prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)
	lane := f.colorize(fmt.Sprintf("lane %d", event.Lane), color.Faint)

	switch event.Name {
	case StepBegin:
		return fmt.Sprintf("%s Step %v: %s in %s",
			f.colorize("===", color.FgYellow),
			event.Data["time"],
			f.colorizeCount("edits", asInt(event.Data["edits"])),
			f.colorizeCount("batches", asInt(event.Data["batches"])))

	case StepComplete:
		return fmt.Sprintf("%s %s Step %v done with %s",
			latency,
			f.colorize("===", color.FgGreen),
			event.Data["time"],
			f.colorizeCount("results", asInt(event.Data["results"])))

	case EvalRound:
		return fmt.Sprintf("%s %s round %v exchanged %s",
			latency, lane,
			event.Data["round"],
			f.colorizeCount("messages", asInt(event.Data["messages"])))

	case EvalRebuild:
		return fmt.Sprintf("%s %s Rebuilding at time %v: %v",
			f.colorize("⟳", color.FgYellow), lane,
			event.Data["time"], event.Data["reason"])

	case EvalDropped:
		return fmt.Sprintf("%s %s Dropped %v at %v: %v",
			f.colorize("⚠️", color.FgYellow), lane,
			event.Data["tuple"], event.Data["node"], event.Data["reason"])

	case EvalComplete:
		return fmt.Sprintf("%s %s converged in %s with %s",
			latency, lane,
			f.colorizeCount("rounds", asInt(event.Data["rounds"])),
			f.colorizeCount("tuples", asInt(event.Data["changes"])))

	case JoinProbe:
		return fmt.Sprintf("%s probe %v → %s",
			lane, event.Data["join"],
			f.colorizeCount("tuples", asInt(event.Data["matches"])))

	case InferContext:
		diags := asInt(event.Data["diagnostics"])
		mark := f.colorize("✓", color.FgGreen)
		if diags > 0 {
			mark = f.colorize("✗", color.FgRed)
		}
		return fmt.Sprintf("%s %s %s %v: %s in %s, %s",
			latency, lane, mark,
			event.Data["context"],
			f.colorizeCount("types", asInt(event.Data["types"])),
			f.colorizeCount("rounds", asInt(event.Data["rounds"])),
			f.colorizeCount("diagnostics", diags))

	case ErrorBackend:
		return fmt.Sprintf("%s %s %v failed: %v",
			f.colorize("✗", color.FgRed), lane,
			event.Data["op"], event.Data["error"])

	default:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	// Use floating-point milliseconds to preserve precision
	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)

	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label, using color based on the label type.
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)

	if !f.useColor {
		return text
	}

	switch strings.ToLower(label) {
	case "tuples", "results":
		return color.MagentaString(text)
	case "types", "edits":
		return color.CyanString(text)
	case "diagnostics":
		if count > 0 {
			return color.RedString(text)
		}
		return color.GreenString(text)
	default:
		return text
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	default:
		return 0
	}
}

// ConsoleHandler creates a handler that prints formatted events to stderr.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stderr).Handle
}

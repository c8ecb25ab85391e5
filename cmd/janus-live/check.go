package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wbrown/janus-live/datalog/annotations"
	"github.com/wbrown/janus-live/datalog/executor"
	"github.com/wbrown/janus-live/datalog/query"
	"github.com/wbrown/janus-live/datalog/workspace"
)

var showHints bool

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Type check programs and report diagnostics",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

var evalCmd = &cobra.Command{
	Use:   "eval FILE...",
	Short: "Evaluate programs and print every derived relation",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEval,
}

func init() {
	checkCmd.Flags().BoolVar(&showHints, "hints", false, "print inferred types of variables")
}

// source is a loaded document and its text
type source struct {
	path string
	text string
}

func loadAll(cmd *cobra.Command, w *workspace.Workspace, paths []string) ([]source, error) {
	var out []source
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if _, err := w.Update(cmd.Context(), path, string(data)); err != nil {
			return nil, err
		}
		out = append(out, source{path: path, text: string(data)})
	}
	return out, nil
}

// printDiagnostics writes the diagnostics of every source to stderr and
// returns how many of them are errors
func printDiagnostics(r *annotations.RelationRenderer, w *workspace.Workspace, sources []source) int {
	errs := 0
	for _, src := range sources {
		for _, d := range w.Diagnostics(src.path) {
			fmt.Fprintln(os.Stderr, r.RenderDiagnostic(src.path, src.text, d))
			if d.Severity == query.SeverityError {
				errs++
			}
		}
	}
	return errs
}

func runCheck(cmd *cobra.Command, args []string) error {
	w, done, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	sources, err := loadAll(cmd, w, args)
	if err != nil {
		return err
	}
	r := renderer()
	if showHints {
		for _, src := range sources {
			for _, h := range w.Hints(src.path) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", src.path, r.RenderHint(src.text, h))
			}
		}
	}
	if n := printDiagnostics(r, w, sources); n > 0 {
		return fmt.Errorf("%d errors", n)
	}
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	w, done, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	sources, err := loadAll(cmd, w, args)
	if err != nil {
		return err
	}
	r := renderer()
	printDiagnostics(r, w, sources)

	tf := executor.NewTableFormatter()
	out := cmd.OutOrStdout()
	for _, src := range sources {
		for _, rel := range w.Relations(src.path) {
			tuples := w.Relation(src.path, rel.Name())
			fmt.Fprintf(out, "### %s: %s\n\n", src.path, r.RenderRelation(rel, len(tuples)))
			fmt.Fprintln(out, tf.FormatRelation(rel, tuples))
			fmt.Fprintln(out)
		}
	}
	return nil
}

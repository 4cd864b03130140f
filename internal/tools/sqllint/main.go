// Command sqllint checks that every inline SQL constant starts with a unique
// --sql <uuid> audit marker.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cmd := &cobra.Command{
		Use:           "sqllint [paths...]",
		Short:         "Verify SQL audit markers in Go sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args, cmd.ErrOrStderr())
		},
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sqllint:", err)
		os.Exit(1)
	}
}

func run(targets []string, stderr io.Writer) error {
	if len(targets) == 0 {
		targets = []string{"."}
	}
	l := newLinter()
	for _, target := range targets {
		if err := l.walk(target); err != nil {
			return err
		}
	}
	violations := l.result()
	if len(violations) == 0 {
		return nil
	}
	for _, v := range violations {
		fmt.Fprintf(stderr, "  %s:%d %s (%s)\n", v.file, v.line, v.message, v.name)
	}
	return fmt.Errorf("%d SQL audit marker violation(s)", len(violations))
}

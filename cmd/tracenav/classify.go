package main

import (
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/eargollo/tracenav/internal/trace"
)

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var fromClipboard bool
	cmd := &cobra.Command{
		Use:   "classify [file|-]",
		Short: "Split stack trace text into text, file and method tokens",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			classifier, err := trace.NewClassifier(cfg.Locales...)
			if err != nil {
				return err
			}

			var text string
			switch {
			case fromClipboard:
				text, err = clipboard.ReadAll()
			case len(args) == 0 || args[0] == "-":
				text, err = readAll(cmd.InOrStdin())
			default:
				text, err = readFile(args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, tok := range classifier.Classify(text) {
				fmt.Fprintf(out, "%s\t%q\n", tok.Kind, tok.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromClipboard, "clipboard", false, "read the trace from the system clipboard")
	return cmd
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "resolve TOKEN",
		Short: "Map a file reference from a trace onto the local solution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if root == "" {
				root = cfg.SolutionRoot
			}
			classifier, err := trace.NewClassifier(cfg.Locales...)
			if err != nil {
				return err
			}
			target, err := classifier.ResolveFileTarget(args[0], root)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%d\n", target.Path, target.Line)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "solution root (default: solution_root from config)")
	return cmd
}

func readAll(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	return string(b), err
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}

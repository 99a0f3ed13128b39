package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var docsCmd = &cobra.Command{
	Use:    "gen-docs",
	Short:  "Generate man pages or markdown for recall",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runGenDocs,
}

func init() {
	docsCmd.Flags().String("dir", "docs", "output directory")
	docsCmd.Flags().String("format", "man", "output format (man, markdown or rest)")
}

func runGenDocs(cmd *cobra.Command, _ []string) error {
	dir, _ := cmd.Flags().GetString("dir")       //nolint:errcheck // flag name is hardcoded
	format, _ := cmd.Flags().GetString("format") //nolint:errcheck // flag name is hardcoded

	root := cmd.Root()
	root.DisableAutoGenTag = true

	var gen func() error
	switch format {
	case "man":
		gen = func() error {
			return doc.GenManTree(root, &doc.GenManHeader{
				Title:   "RECALL",
				Section: "1",
				Source:  "recall " + version,
				Manual:  "recall manual",
			}, dir)
		}
	case "markdown":
		gen = func() error { return doc.GenMarkdownTree(root, dir) }
	case "rest":
		gen = func() error { return doc.GenReSTTree(root, dir) }
	default:
		return fmt.Errorf("unknown format %q (use man, markdown or rest)", format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return gen()
}

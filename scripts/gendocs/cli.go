package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/iotsdd/attendchain/internal/cli"
)

// generateCLIDocs writes an index page and one page per top-level command.
// Subcommands are documented on their parent's page.
func generateCLIDocs(outDir string) error {
	log.Printf("Generating CLI docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	root := cli.NewRootCmd()

	if err := writePage(filepath.Join(outDir, "index.md"), cliIndex(root)); err != nil {
		return fmt.Errorf("failed to generate index: %w", err)
	}
	log.Printf("  Generated index.md")

	for _, cmd := range documented(root) {
		if err := writePage(filepath.Join(outDir, cmd.Name()+".md"), commandPage(cmd)); err != nil {
			return fmt.Errorf("failed to generate page for %s: %w", cmd.Name(), err)
		}
		log.Printf("  Generated %s.md", cmd.Name())
	}
	return nil
}

func writePage(path string, w *MarkdownWriter) error {
	return os.WriteFile(path, w.Bytes(), 0600)
}

// documented returns the visible children of cmd.
func documented(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, c := range cmd.Commands() {
		if c.Hidden || c.Name() == "help" || c.Name() == "__complete" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func cliIndex(root *cobra.Command) *MarkdownWriter {
	w := NewMarkdownWriter()
	w.Frontmatter("CLI Reference", "Command-line interface reference for attendchain")
	w.GeneratedMarker()

	w.Header(1, "CLI Reference")
	w.Paragraph("attendchain checks the configured development network, resolves the deployed AttendanceTracker and reads or appends attendance records.")

	w.Header(2, "Installation")
	w.CodeBlock("bash", "go install github.com/iotsdd/attendchain/cmd/attendchain@latest")

	w.Header(2, "Commands")
	var rows [][]string
	for _, c := range documented(root) {
		rows = append(rows, []string{fmt.Sprintf("[%s](/cli/%s)", InlineCode(c.Name()), c.Name()), cleanDescription(c.Short)})
	}
	w.Table([]string{"Command", "Description"}, rows)

	w.Header(2, "Global Options")
	flagTable(w, root.PersistentFlags())

	w.Header(2, "Environment Variables")
	w.Paragraph("Every configuration key can be set with an `ATTENDCHAIN_` variable; nested keys are joined with a double underscore. A `.env` file in the project root is read first. Flags take precedence over the environment, which takes precedence over `attendchain.yaml`.")
	w.Table([]string{"Variable", "Description"}, [][]string{
		{InlineCode("ATTENDCHAIN_NETWORK"), "Selected network"},
		{InlineCode("ATTENDCHAIN_STATE_PATH"), "State database path"},
		{InlineCode("ATTENDCHAIN_CONTRACTS_BUILD_DIR"), "Contract build artifacts directory"},
		{InlineCode("ATTENDCHAIN_NETWORKS__DEVELOPMENT__PORT"), "Port of the development network"},
		{InlineCode("ATTENDCHAIN_API__ADMIN_PASSWORD"), "Password of the bootstrapped API admin"},
		{InlineCode("ATTENDCHAIN_API__SESSION_SECRET"), "Key signing API session cookies"},
	})

	w.Header(2, "Output")
	w.Paragraph("`--output auto` prints styled text on a terminal and markdown when piped. `--output json` prints one JSON document per command.")
	return w
}

func commandPage(cmd *cobra.Command) *MarkdownWriter {
	w := NewMarkdownWriter()
	w.Frontmatter(cmd.Name(), cmd.Short)
	w.GeneratedMarker()

	w.Header(1, cmd.Name())
	describe(w, cmd, 2)

	for _, sub := range documented(cmd) {
		w.Header(2, cmd.Name()+" "+sub.Name())
		describe(w, sub, 3)
	}

	if cmd.HasInheritedFlags() {
		w.Header(2, "Global Options")
		flagTable(w, cmd.InheritedFlags())
	}
	return w
}

// describe writes the description, usage, options and examples of cmd
// with section headings at level.
func describe(w *MarkdownWriter, cmd *cobra.Command, level int) {
	if cmd.Long != "" {
		w.Paragraph(cmd.Long)
	} else {
		w.Paragraph(cmd.Short)
	}

	use := "attendchain " + strings.TrimPrefix(cmd.UseLine(), "attendchain ")
	if cmd.HasAvailableSubCommands() {
		use = fmt.Sprintf("attendchain %s <subcommand> [options]", cmd.Name())
	}
	w.CodeBlock("bash", use)

	if len(cmd.Aliases) > 0 {
		aliases := make([]string, len(cmd.Aliases))
		for i, a := range cmd.Aliases {
			aliases[i] = InlineCode(a)
		}
		w.Paragraph("Aliases: " + strings.Join(aliases, ", "))
	}

	if cmd.HasAvailableLocalFlags() {
		w.Header(level, "Options")
		flagTable(w, cmd.LocalNonPersistentFlags())
	}
	if cmd.HasAvailableSubCommands() && cmd.PersistentFlags().HasAvailableFlags() {
		w.Header(level, "Options for all subcommands")
		flagTable(w, cmd.PersistentFlags())
	}

	if cmd.Example != "" {
		w.Header(level, "Examples")
		w.CodeBlock("bash", dedent(cmd.Example))
	}
}

func flagTable(w *MarkdownWriter, flags *pflag.FlagSet) {
	var rows [][]string
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		short := ""
		if f.Shorthand != "" {
			short = "-" + f.Shorthand
		}
		def := f.DefValue
		if def != "" && f.Value.Type() == "string" {
			def = InlineCode(def)
		}
		rows = append(rows, []string{InlineCode("--" + f.Name), short, def, cleanDescription(f.Usage)})
	})
	w.Table([]string{"Option", "Short", "Default", "Description"}, rows)
}

// dedent strips the indentation shared by every non-blank line.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	indent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, l := range lines {
		if len(l) >= indent && indent > 0 {
			lines[i] = l[indent:]
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

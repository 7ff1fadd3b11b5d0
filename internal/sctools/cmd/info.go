package cmd

import (
	"crypto/sha256"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"sctools/internal/analysis"
	"sctools/internal/image"
	"sctools/internal/sctools/styles"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Summarize an image",
	Long: `Summarize an image or raw code file: target, size, pages, functions and
detector findings. On a terminal the summary is rendered markdown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lenient := flagOr(cmd, "lenient", project.Disasm.Lenient)
		md, err := infoMarkdown(args[0], project.Target, lenient)
		if err != nil {
			return err
		}
		if isTerminal() {
			md = styles.RenderMarkdown(md, 100) + "\n"
		}
		_, err = io.WriteString(cmd.OutOrStdout(), md)
		return err
	},
}

func init() {
	infoCmd.Flags().Bool("lenient", false, "Accept bytes that are not opcodes")
	rootCmd.AddCommand(infoCmd)
}

func infoMarkdown(path, target string, lenient bool) (string, error) {
	f, p, err := loadProgram(path, target, lenient)
	if err != nil {
		return "", err
	}
	return summary(filepath.Base(path), f, p, analysis.DefaultDetectors().Detect(p)), nil
}

func summary(name string, f *image.File, p *analysis.Program, findings []analysis.Finding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", name)
	fmt.Fprintf(&sb, "- **target** %s (%s)\n", p.Set.Name, p.Set.Description)
	fmt.Fprintf(&sb, "- **size** %d bytes, %d instructions\n", len(p.Code), len(p.Insts))
	if f.PageSize > 0 {
		fmt.Fprintf(&sb, "- **pages** %d of %d bytes\n", len(f.Pages()), f.PageSize)
	}
	fmt.Fprintf(&sb, "- **sha256** `%x`\n\n", sha256.Sum256(p.Code))

	fmt.Fprintf(&sb, "## Functions (%d)\n\n", len(p.Functions))
	sb.WriteString("| name | start | end | blocks | calls |\n|---|---|---|---|---|\n")
	for _, fn := range p.Functions {
		calls := 0
		for _, b := range fn.Blocks {
			calls += len(b.Calls)
		}
		fmt.Fprintf(&sb, "| %s | %06X | %06X | %d | %d |\n",
			strings.ReplaceAll(fn.Name, "|", `\|`), fn.Start, fn.End, len(fn.Blocks), calls)
	}

	if len(findings) > 0 {
		fmt.Fprintf(&sb, "\n## Findings (%d)\n\n", len(findings))
		for _, fd := range findings {
			fmt.Fprintf(&sb, "- `%06X` %s in %s: %s\n", fd.Addr, fd.Kind, fd.Function, fd.Comment)
		}
	}
	return sb.String()
}

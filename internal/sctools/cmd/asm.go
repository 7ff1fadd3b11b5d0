package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"sctools/internal/analysis"
	"sctools/internal/asmtext"
	"sctools/internal/image"
	"sctools/internal/isa"
)

type asmOptions struct {
	Input  string
	Output string
	Target string
	// Raw writes the bare code instead of an image.
	Raw bool
	asmtext.Options
}

var asmCmd = &cobra.Command{
	Use:   "asm <file.sca>",
	Short: "Assemble a text listing",
	Long: `Assemble a text listing into a code image (.scbc) or, with --raw, into
bare code bytes. A .target directive in the listing overrides --target.`,
	Example: `
sctools asm script.sca
sctools asm -O --raw -o script.bin script.sca
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o := asmOptions{Input: args[0], Target: project.Target}
		o.Output, _ = cmd.Flags().GetString("output")
		o.Raw, _ = cmd.Flags().GetBool("raw")
		o.Optimize = flagOr(cmd, "optimize", project.Assemble.Optimize)
		o.StripNames = flagOr(cmd, "strip-names", project.Assemble.StripNames)
		o.RequireFunction = flagOr(cmd, "require-function", project.Assemble.RequireFunction)
		_, err := runAsm(o)
		return err
	},
}

func init() {
	asmCmd.Flags().StringP("output", "o", "", "Output file (default: input with .scbc or .bin extension)")
	asmCmd.Flags().BoolP("optimize", "O", false, "Run the peephole optimizer")
	asmCmd.Flags().Bool("strip-names", false, "Leave function names out of prologues")
	asmCmd.Flags().Bool("require-function", false, "Reject instructions before the first ENTER")
	asmCmd.Flags().Bool("raw", false, "Write bare code bytes instead of an image")
	rootCmd.AddCommand(asmCmd)
}

// flagOr returns the flag value when it was given, else def.
func flagOr(cmd *cobra.Command, name string, def bool) bool {
	if !cmd.Flags().Changed(name) {
		return def
	}
	v, _ := cmd.Flags().GetBool(name)
	return v
}

func outputPath(input, output, ext string) string {
	if output != "" {
		return output
	}
	out := strings.TrimSuffix(input, filepath.Ext(input)) + ext
	if project.Assemble.Output != "" {
		dir := project.Assemble.Output
		if !filepath.IsAbs(dir) && project.Dir != "" {
			dir = filepath.Join(project.Dir, dir)
		}
		out = filepath.Join(dir, filepath.Base(out))
	}
	return out
}

func runAsm(o asmOptions) (string, error) {
	src, err := os.ReadFile(o.Input)
	if err != nil {
		return "", err
	}
	set, err := isa.Lookup(o.Target)
	if err != nil {
		return "", err
	}
	if o.Name == "" {
		o.Name = o.Input
	}
	res, err := asmtext.Assemble(set, string(src), o.Options)
	if err != nil {
		return "", err
	}

	ext := ".scbc"
	if o.Raw {
		ext = ".bin"
	}
	out := outputPath(o.Input, o.Output, ext)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}

	if o.Raw {
		if err := os.WriteFile(out, res.Image.Code, 0o644); err != nil {
			return "", err
		}
	} else {
		f := image.New(res.Set, res.Image)
		if p, err := analysis.Analyze(res.Set, res.Image.Code, analysis.ScanOptions{}); err == nil {
			f.Functions = functionTable(p)
		} else {
			logger.Warn("no function table", "file", o.Input, "error", err)
		}
		if err := image.Write(out, f); err != nil {
			return "", fmt.Errorf("write %s: %w", out, err)
		}
	}
	logger.Info("assembled", "file", out, "target", res.Set.Name, "bytes", len(res.Image.Code), "fusions", res.Fusions)
	return out, nil
}

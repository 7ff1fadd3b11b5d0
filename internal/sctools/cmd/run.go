package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"sctools/internal/analysis"
)

// detectors maps the names accepted by run to detectors.
var detectors = map[string]func() analysis.Detector{
	"unreachable":    func() analysis.Detector { return &analysis.UnreachableDetector{} },
	"page-skip":      func() analysis.Detector { return &analysis.PageSkipDetector{} },
	"invalid-opcode": func() analysis.Detector { return &analysis.InvalidOpcodeDetector{} },
}

func detectorNames() []string {
	names := make([]string, 0, len(detectors))
	for n := range detectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var runCmd = &cobra.Command{
	Use:   "run <file> [detector...]",
	Short: "Run detectors non-interactively",
	Long: `Run detectors over an image and print their findings. Without detector
names every detector runs. Known detectors: ` + strings.Join(detectorNames(), ", ") + `.`,
	Example: `
# Run every detector
sctools run script.scbc

# Only look for page-skip padding, as JSON
sctools run --json script.scbc page-skip
  `,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")
		asJSON, _ := cmd.Flags().GetBool("json")
		lenient := flagOr(cmd, "lenient", project.Disasm.Lenient)
		if !quiet {
			slog.Info("Running detectors", "file", args[0], "detectors", args[1:])
		}
		return runDetectors(cmd.OutOrStdout(), args[0], project.Target, lenient, args[1:], asJSON)
	},
}

func init() {
	runCmd.Flags().BoolP("quiet", "q", false, "Do not log progress")
	runCmd.Flags().BoolP("json", "j", false, "Output findings as JSON")
	runCmd.Flags().Bool("lenient", false, "Accept bytes that are not opcodes")
	rootCmd.AddCommand(runCmd)
}

func chain(names []string) (*analysis.DetectorChain, error) {
	if len(names) == 0 {
		return analysis.DefaultDetectors(), nil
	}
	var ds []analysis.Detector
	for _, n := range names {
		mk, ok := detectors[strings.ToLower(n)]
		if !ok {
			return nil, fmt.Errorf("unknown detector %q (known: %s)", n, strings.Join(detectorNames(), ", "))
		}
		ds = append(ds, mk())
	}
	return analysis.NewDetectorChain(ds...), nil
}

func runDetectors(w io.Writer, path, target string, lenient bool, names []string, asJSON bool) error {
	dc, err := chain(names)
	if err != nil {
		return err
	}
	_, p, err := loadProgram(path, target, lenient)
	if err != nil {
		return err
	}
	findings := dc.Detect(p)
	if asJSON {
		if findings == nil {
			findings = []analysis.Finding{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	}
	for _, f := range findings {
		if _, err := fmt.Fprintf(w, "%06X  %-14s %-20s %s\n", f.Addr, f.Kind, f.Function, f.Comment); err != nil {
			return err
		}
	}
	logger.Info("detectors done", "file", path, "findings", len(findings))
	return nil
}

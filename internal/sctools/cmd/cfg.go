package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"sctools/internal/render"
)

type cfgOptions struct {
	Input     string
	Target    string
	Function  string
	CallGraph bool
	// Dir receives one DOT file per function instead of w.
	Dir string
}

var cfgCmd = &cobra.Command{
	Use:   "cfg <file> [function]",
	Short: "Render control flow or call graphs as DOT",
	Long: `Render the control flow graph of one function, of every function, or the
call graph of the whole image, in Graphviz DOT.`,
	Example: `
sctools cfg script.scbc main | dot -Tsvg > main.svg
sctools cfg --callgraph script.scbc > calls.dot
sctools cfg --out cfg/ script.scbc
  `,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		o := cfgOptions{Input: args[0], Target: project.Target}
		if len(args) > 1 {
			o.Function = args[1]
		}
		o.CallGraph, _ = cmd.Flags().GetBool("callgraph")
		o.Dir, _ = cmd.Flags().GetString("out")
		return runCfg(cmd.OutOrStdout(), o)
	},
}

func init() {
	cfgCmd.Flags().Bool("callgraph", false, "Render the call graph instead of control flow")
	cfgCmd.Flags().String("out", "", "Write one DOT file per function into this directory")
	rootCmd.AddCommand(cfgCmd)
}

func runCfg(w io.Writer, o cfgOptions) error {
	_, p, err := loadProgram(o.Input, o.Target, false)
	if err != nil {
		return err
	}
	title := strings.TrimSuffix(filepath.Base(o.Input), filepath.Ext(o.Input))

	switch {
	case o.CallGraph:
		_, err = io.WriteString(w, render.CallGraph(p, title))
	case o.Dir != "":
		var n int
		n, err = render.WriteCFGs(o.Dir, p)
		if err == nil {
			logger.Info("wrote control flow graphs", "dir", o.Dir, "count", n)
		}
	case o.Function != "":
		f := p.Function(o.Function)
		if f == nil {
			return fmt.Errorf("%s has no function %q", o.Input, o.Function)
		}
		_, err = io.WriteString(w, render.CFG(p, f))
	default:
		_, err = io.WriteString(w, render.CFGs(p, title))
	}
	return err
}

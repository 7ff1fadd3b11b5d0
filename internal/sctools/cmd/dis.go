package cmd

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"sctools/internal/analysis"
	"sctools/internal/asmtext"
	"sctools/internal/disasm"
	"sctools/internal/ui/colorize"
)

// JSONListing is the --json form of a listing.
type JSONListing struct {
	Target    string         `json:"target"`
	PageSize  int            `json:"page_size,omitempty"`
	Size      int            `json:"size"`
	Functions []JSONFunction `json:"functions"`
}

// JSONFunction is one function of a JSONListing.
type JSONFunction struct {
	Name         string     `json:"name"`
	Start        int        `json:"start"`
	End          int        `json:"end"`
	Blocks       int        `json:"blocks"`
	Instructions []JSONInst `json:"instructions"`
}

// JSONInst is one decoded instruction.
type JSONInst struct {
	Addr  int    `json:"addr"`
	Text  string `json:"text"`
	Bytes string `json:"bytes"`
}

type disOptions struct {
	Input   string
	Target  string
	Color   bool
	JSON    bool
	Lenient bool
	asmtext.PrintOptions
}

var disCmd = &cobra.Command{
	Use:   "dis <file>",
	Short: "List an image or raw code file",
	Long: `List the code of an image (.scbc) or raw code file. Raw files are decoded
for --target. The listing re-assembles with "sctools asm".`,
	Example: `
sctools dis script.scbc
sctools dis -t gta4 --addresses --raw-bytes script.bin
sctools dis --json script.scbc | jq '.functions[].name'
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o := disOptions{Input: args[0], Target: project.Target}
		o.JSON, _ = cmd.Flags().GetBool("json")
		o.Lenient = flagOr(cmd, "lenient", project.Disasm.Lenient)
		o.Addresses = flagOr(cmd, "addresses", project.Disasm.Addresses)
		o.RawBytes = flagOr(cmd, "raw-bytes", project.Disasm.RawBytes)
		mode := project.Disasm.Color
		if cmd.Flags().Changed("color") {
			mode, _ = cmd.Flags().GetString("color")
		}
		color, err := useColor(mode)
		if err != nil {
			return err
		}
		o.Color = color
		return runDis(cmd.OutOrStdout(), o)
	},
}

func init() {
	disCmd.Flags().String("color", "auto", "Highlight the listing: auto, always or never")
	disCmd.Flags().Bool("addresses", false, "Append instruction addresses as comments")
	disCmd.Flags().Bool("raw-bytes", false, "Append encoded bytes as comments")
	disCmd.Flags().Bool("lenient", false, "List bytes that are not opcodes instead of failing")
	disCmd.Flags().BoolP("json", "j", false, "Output the decoded functions as JSON")
	rootCmd.AddCommand(disCmd)
}

func useColor(mode string) (bool, error) {
	switch mode {
	case "", "auto":
		return isTerminal() && colorize.Enabled(), nil
	case "always":
		return true, nil
	case "never":
		return false, nil
	}
	return false, fmt.Errorf("--color must be auto, always or never, not %q", mode)
}

func runDis(w io.Writer, o disOptions) error {
	f, p, err := loadProgram(o.Input, o.Target, o.Lenient)
	if err != nil {
		return err
	}
	if o.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonListing(p, f.PageSize))
	}

	var buf bytes.Buffer
	if err := asmtext.Print(&buf, p, o.PrintOptions); err != nil {
		return err
	}
	out := buf.String()
	if o.Color {
		// colorize.Listing returns the input on failure
		out, _ = colorize.Listing(out)
	}
	_, err = io.WriteString(w, out)
	return err
}

func jsonListing(p *analysis.Program, pageSize int) JSONListing {
	names := asmtext.Labels(p)
	namer := func(addr int) string {
		if n, ok := names[addr]; ok {
			return n
		}
		return disasm.LabelName(addr)
	}
	out := JSONListing{Target: p.Set.Name, PageSize: pageSize, Size: len(p.Code)}
	for _, fn := range p.Functions {
		jf := JSONFunction{Name: fn.Name, Start: fn.Start, End: fn.End, Blocks: len(fn.Blocks)}
		for _, in := range p.Instructions(fn.Start, fn.End) {
			jf.Instructions = append(jf.Instructions, JSONInst{
				Addr:  in.Addr,
				Text:  disasm.Format(in, namer),
				Bytes: hex.EncodeToString(in.Raw),
			})
		}
		out.Functions = append(out.Functions, jf)
	}
	return out
}

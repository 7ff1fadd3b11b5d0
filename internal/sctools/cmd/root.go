package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"sctools/internal/config"
	"sctools/internal/isa"
	"sctools/internal/logging"
	"sctools/internal/sctools/log"
)

var (
	// project is the loaded sctools.toml, or the defaults.
	project = config.Default()
	logger  = logging.NewLoggerWithWriter(os.Stderr)

	cpuProfile *os.File
)

func init() {
	rootCmd.PersistentFlags().StringP("target", "t", "", "Instruction set: gta4, gta5 or rdr2 (default from sctools.toml, else gta5)")
	rootCmd.PersistentFlags().String("config", "", "Directory holding sctools.toml (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-file", "", "Write slog records to this file")
	rootCmd.PersistentFlags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.PersistentFlags().String("memprofile", "", "Write memory profile to file")
}

var rootCmd = &cobra.Command{
	Use:   "sctools",
	Short: "Assembler, disassembler and analyzer for script VM bytecode",
	Long: `sctools works with the bytecode of three script virtual machines (gta4, gta5
and rdr2). It assembles text listings into code images, lists and analyzes
images, renders control flow graphs and encrypts or decrypts code files.`,
	Example: `
# Assemble a listing for gta5 with the peephole optimizer
sctools asm -O script.sca

# List a raw rdr2 code dump with addresses
sctools dis -t rdr2 --addresses script.bin

# Browse the functions of an image
sctools browse script.scbc
  `,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadProject(cmd); err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		debug = debug || project.Log.Debug || logging.IsDebug()
		logFile, _ := cmd.Flags().GetString("log-file")
		if logFile == "" {
			logFile = project.Log.File
		}
		log.Setup(logFile, debug)

		logger = logging.NewLogger()
		if debug {
			logger.SetLevel(charmlog.DebugLevel)
		}
		logger.Debug("configuration", "dir", project.Dir, "target", project.Target)
		return startCPUProfile(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cpuProfile != nil {
			pprof.StopCPUProfile()
			cpuProfile.Close()
		}
		if err := writeMemProfile(cmd); err != nil {
			return err
		}
		if err := log.Close(); err != nil {
			return err
		}
		return logger.Close()
	},
}

func loadProject(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	var (
		c   *config.Config
		err error
	)
	if dir != "" {
		c, err = config.Load(dir)
	} else {
		c, err = config.FindAndLoad(".")
	}
	if err != nil {
		return err
	}
	if c != nil {
		project = c
	}
	if t, _ := cmd.Flags().GetString("target"); t != "" {
		project.Target = t
	}
	if _, err := isa.Lookup(project.Target); err != nil {
		return err
	}
	return nil
}

func startCPUProfile(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("cpuprofile")
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("could not start CPU profile: %w", err)
	}
	cpuProfile = f
	return nil
}

func writeMemProfile(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("memprofile")
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}
	return nil
}

// isTerminal reports whether stdout is a terminal.
func isTerminal() bool {
	return term.IsTerminal(os.Stdout.Fd())
}

// Execute runs the root command. On a terminal it goes through fang for
// styled help and errors; piped output gets plain cobra.
func Execute() {
	if !isTerminal() {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

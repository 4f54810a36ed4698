package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Garden  string // garden CUE file or directory
	DB      string // SQLite path or postgres:// DSN
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultGarden is read when --garden is not given.
const DefaultGarden = "garden.cue"

// NewRootCommand creates the root command for the telephone CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "telephone",
		Short: "telephone - clinical record drift across chained systems",
		Long: `Pass a clinical document through a chain of record systems, store
every hand-off as provenance, and measure how the document drifts from
one system to the next.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Garden, "garden", "g", DefaultGarden, "garden configuration (CUE file or directory)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "provenance store: SQLite path or postgres:// DSN (default: $"+EnvDB+", the garden's store, then "+DefaultDB+")")

	cmd.AddCommand(NewChainCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

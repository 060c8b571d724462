// Command investigator drives troubleshooting cases from the terminal:
// open a case, submit turns, inspect progress and memory, close it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-investigator/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	configPath string
	output     string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "investigator",
		Short: "Structured troubleshooting case investigator",
		Long: "investigator runs troubleshooting cases through a consulting and\n" +
			"investigation state machine with hypotheses, evidence and bounded memory.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch flags.output {
			case outputText, outputJSON, outputYAML:
				return nil
			default:
				return fmt.Errorf("unsupported output %q (want text, json or yaml)", flags.output)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", config.DefaultConfigPath, "Path to YAML config file")
	pf.StringVarP(&flags.output, "output", "o", outputText, "Output format: text, json or yaml")

	root.AddCommand(
		newOpenCmd(flags),
		newTurnCmd(flags),
		newShowCmd(flags),
		newListCmd(flags),
		newCloseCmd(flags),
		newMemoryCmd(flags),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

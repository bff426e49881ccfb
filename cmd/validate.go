package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/lansim/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without building the network.

Checks host names, addresses and switch ports for clashes and every
scenario step against the configured hosts.

Examples:
  lansim validate -c lansim.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "VALID: %d host(s) on a %d-port switch, %d scenario step(s)\n",
		len(cfg.Hosts), cfg.Switch.Ports, len(cfg.Scenario.Steps))
	return nil
}

package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/lansim/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print a sample configuration",
	Long: `Print a two-host sample configuration with every default filled in.

Examples:
  lansim config > lansim.yml
  lansim run -c lansim.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runConfig(os.Stdout); err != nil {
			exitWithError("failed to render config", err)
		}
	},
}

func runConfig(w io.Writer) error {
	out, err := config.Marshal(config.Sample())
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nodemailer/nodemailer/internal/identity"
)

// debugCmd is the parent command for debug subcommands
var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug and diagnostic commands",
	Long:  `Commands for debugging and diagnosing issues with nodemailer.`,
}

// debugFlagsCmd prints resolved flag values for debugging
var debugFlagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Print resolved flag values for debugging",
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		configPath, _ := cmd.Flags().GetString("config")
		noColor, _ := cmd.Flags().GetBool("no-color")

		fmt.Println("Resolved Flag Values:")
		fmt.Printf("  --verbose:  %v\n", verbose)
		fmt.Printf("  --config:   %q\n", configPath)
		fmt.Printf("  --no-color: %v\n", noColor)
		return nil
	},
}

// debugConfigCmd prints the effective configuration after file, .env and
// environment overrides
var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, paths, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}

		fmt.Println("Paths:")
		fmt.Printf("  config:    %s\n", paths.ConfigFile)
		fmt.Printf("  env:       %s\n", paths.EnvFile)
		fmt.Printf("  favorites: %s\n", paths.FavoritesFile)
		fmt.Printf("  log:       %s\n", paths.LogFile)
		fmt.Printf("\nAnnounced name: %s\n", identity.Resolve(cfg.Username))
		fmt.Printf("\nConfig:\n%s\n", data)
		return nil
	},
}

func init() {
	debugCmd.AddCommand(debugFlagsCmd)
	debugCmd.AddCommand(debugConfigCmd)
}

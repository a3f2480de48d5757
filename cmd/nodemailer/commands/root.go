package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nodemailer/nodemailer/internal/config"
	"github.com/nodemailer/nodemailer/internal/control"
	"github.com/nodemailer/nodemailer/internal/ui"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

// controlTimeout bounds every call to a running instance
const controlTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "nodemailer",
	Short: "nodemailer - send messages and node graphs to peers on the LAN",
	Long: `nodemailer finds other instances on the local network by UDP broadcast and
sends them short messages, optionally with an attached node graph.

Start an instance with "nodemailer run"; the other commands talk to it.

Use "nodemailer [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		noColor, _ := cmd.Flags().GetBool("no-color")
		ui.SetNoColor(noColor)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log to stderr instead of the log file")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.nodemailer/config.json)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(debugCmd)
}

// versionCmd shows version info
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nodemailer\n")
		fmt.Printf("  Version:  %s\n", Version)
		fmt.Printf("  Commit:   %s\n", Commit)
		fmt.Printf("  Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// loadSettings resolves the config file from --config or the standard location
func loadSettings(cmd *cobra.Command) (*config.Config, *config.Paths, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return nil, nil, err
	}
	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		paths.ConfigFile = configPath
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, nil, err
	}

	cfg, err := config.LoadFile(paths.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, paths, nil
}

// withControl dials the running instance and calls fn with a bounded context
func withControl(cmd *cobra.Command, fn func(ctx context.Context, c *control.Client) error) error {
	cfg, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	client, err := control.Dial(cfg.ControlAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), controlTimeout)
	defer cancel()
	return controlError(fn(ctx, client), cfg.ControlAddr)
}

// controlError turns gRPC status errors into user-facing messages
func controlError(err error, addr string) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		// Failures to reach the instance itself are reported by the transport
		if strings.HasPrefix(st.Message(), "connection error") {
			return fmt.Errorf("no running instance at %s (start one with \"nodemailer run\")", addr)
		}
		return errors.New(st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("instance at %s did not answer in time", addr)
	default:
		return errors.New(st.Message())
	}
}

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nodemailer/nodemailer/internal/control"
	"github.com/nodemailer/nodemailer/internal/identity"
	"github.com/nodemailer/nodemailer/internal/messaging"
	"github.com/nodemailer/nodemailer/internal/nodecodec"
	"github.com/nodemailer/nodemailer/internal/ui"
)

var sendCmd = &cobra.Command{
	Use:   "send <peer> [message...]",
	Short: "Send a message to a peer",
	Long: `Send a message, optionally with an attached node graph, to a peer.

By default the running instance resolves the peer by name and delivers the
mail. With --addr the mail goes straight to that host without a running
instance; <peer> is then only used in the confirmation.

Examples:
  nodemailer send alice "can you look at this comp?"
  nodemailer send alice "updated keyer" --nodes keyer.nk
  nodemailer send bob hi --addr 192.168.1.20
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var (
	sendNodesFile string
	sendAddr      string
)

func init() {
	sendCmd.Flags().StringVar(&sendNodesFile, "nodes", "", "Node graph file to attach")
	sendCmd.Flags().StringVar(&sendAddr, "addr", "", "Send directly to this host instead of through the running instance")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	peer := args[0]
	message := strings.Join(args[1:], " ")
	if message == "" && sendNodesFile == "" {
		return fmt.Errorf("nothing to send: give a message or --nodes")
	}

	spinner := ui.NewSpinner(os.Stderr, fmt.Sprintf("Sending to %s", peer))
	spinner.Start()
	defer spinner.Stop()

	var blob string
	if sendNodesFile != "" {
		spinner.SetMessage(fmt.Sprintf("Reading %s", sendNodesFile))
		var err error
		if blob, err = nodecodec.EncodeFile(sendNodesFile); err != nil {
			return err
		}
		spinner.SetMessage(fmt.Sprintf("Sending to %s", peer))
	}

	if err := deliver(cmd, peer, message, blob); err != nil {
		return err
	}
	spinner.Stop()

	fmt.Println(ui.RenderSuccess(fmt.Sprintf("Mail sent to %s", peer)))
	return nil
}

func deliver(cmd *cobra.Command, peer, message, blob string) error {
	if sendAddr == "" {
		return withControl(cmd, func(ctx context.Context, c *control.Client) error {
			return c.SendMail(ctx, peer, message, blob)
		})
	}

	cfg, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	sender := messaging.NewSender(cfg.ConnectTimeout())
	m := messaging.NewMail(identity.Resolve(cfg.Username), message, blob)
	return sender.SendMail(cmd.Context(), m, sendAddr, cfg.MessagingPort)
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask the instance on this machine to exit",
	Long: `Send a shutdown envelope to the messaging port on localhost. Nothing is
reported if no instance is listening.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		messaging.NewSender(cfg.ConnectTimeout()).SendShutdown(cmd.Context(), cfg.MessagingPort)
		fmt.Println(ui.RenderDim("Shutdown signal sent"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(shutdownCmd)
}

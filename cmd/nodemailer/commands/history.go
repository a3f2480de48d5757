package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nodemailer/nodemailer/internal/nodecodec"
	"github.com/nodemailer/nodemailer/internal/storage"
	"github.com/nodemailer/nodemailer/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse received mail",
	Long: `Browse mail received by "nodemailer run". Mail IDs may be shortened to any
unique prefix, as shown by "history list".`,
}

var historyLimit int

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List received mail, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(db *storage.DB) error {
			records, err := db.ListMail(historyLimit)
			if err != nil {
				return err
			}
			fmt.Print(ui.RenderHistory(records))
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one received mail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(db *storage.DB) error {
			rec, err := db.GetMail(args[0])
			if err != nil {
				return err
			}
			fmt.Println(ui.RenderDim("ID: " + rec.ID))
			fmt.Print(ui.RenderMailCard(rec.Mail, rec.ReceivedAt))
			return nil
		})
	},
}

var historyImportOut string

var historyImportCmd = &cobra.Command{
	Use:   "import <id>",
	Short: "Write the node graph attached to a mail to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(db *storage.DB) error {
			rec, err := db.GetMail(args[0])
			if err != nil {
				return err
			}
			if !rec.HasNodes() {
				return fmt.Errorf("mail %s: %w", rec.ID, nodecodec.ErrEmptyBlob)
			}

			out := historyImportOut
			if out == "" {
				out = fmt.Sprintf("%s-%s.nk", rec.SenderName, rec.ID[:8])
			}
			if err := nodecodec.DecodeToFile(rec.NodeString, out); err != nil {
				return err
			}
			abs, _ := filepath.Abs(out)
			fmt.Println(ui.RenderSuccess("Nodes written to " + abs))
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a received mail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(db *storage.DB) error {
			if err := db.DeleteMail(args[0]); err != nil {
				return err
			}
			fmt.Println(ui.RenderDim("Deleted"))
			return nil
		})
	},
}

func withHistory(cmd *cobra.Command, fn func(db *storage.DB) error) error {
	_, paths, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	db, err := storage.Open(paths.ConfigDir)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of mails to list (0 for all)")
	historyImportCmd.Flags().StringVarP(&historyImportOut, "out", "o", "", "Output file (default: <sender>-<id>.nk)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyImportCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

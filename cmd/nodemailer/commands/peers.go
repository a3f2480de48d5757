package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nodemailer/nodemailer/internal/control"
	"github.com/nodemailer/nodemailer/internal/ui"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List peers discovered by the running instance",
	Long: `List the instances the running node has heard from in the last 30 seconds.
Favorites are listed first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withControl(cmd, func(ctx context.Context, c *control.Client) error {
			peers, err := c.ListPeers(ctx)
			if err != nil {
				return err
			}
			fmt.Print(ui.RenderPeerList(peers, time.Now()))
			return nil
		})
	},
}

var favoriteCmd = &cobra.Command{
	Use:     "favorite <peer>",
	Aliases: []string{"fav"},
	Short:   "Toggle a peer's favorite flag",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withControl(cmd, func(ctx context.Context, c *control.Client) error {
			p, err := c.ToggleFavorite(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(favoriteMessage(p.Name, p.Favorite))
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of the running instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withControl(cmd, func(ctx context.Context, c *control.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Print(ui.RenderStatus(st, time.Now()))
			return nil
		})
	},
}

func favoriteMessage(name string, favorite bool) string {
	if favorite {
		return ui.RenderSuccess(fmt.Sprintf("%s %s added to favorites", ui.FavoriteMark, name))
	}
	return ui.RenderDim(fmt.Sprintf("%s removed from favorites", name))
}

func init() {
	rootCmd.AddCommand(peersCmd)
	rootCmd.AddCommand(favoriteCmd)
	rootCmd.AddCommand(statusCmd)
}

package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nodemailer/nodemailer/internal/config"
	"github.com/nodemailer/nodemailer/internal/control"
	"github.com/nodemailer/nodemailer/internal/favorites"
	"github.com/nodemailer/nodemailer/internal/identity"
	"github.com/nodemailer/nodemailer/internal/node"
	"github.com/nodemailer/nodemailer/internal/registry"
	"github.com/nodemailer/nodemailer/internal/storage"
	"github.com/nodemailer/nodemailer/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an instance: announce yourself, discover peers and receive mail",
	Long: `Run a nodemailer instance until interrupted.

The instance announces itself on the LAN, keeps a list of the peers it hears
from, and shows mail as it arrives. When stdin is a terminal an interactive
prompt is available; type "help" for its commands.

Logs go to ~/.nodemailer/logs/nodemailer.log unless --verbose is set.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runName      string
	runEphemeral bool
	runNoPrompt  bool
)

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "Announce this name instead of the configured username")
	runCmd.Flags().BoolVar(&runEphemeral, "ephemeral", false, "Keep favorites in memory and do not record history")
	runCmd.Flags().BoolVar(&runNoPrompt, "no-prompt", false, "Disable the interactive prompt")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	closeLog, err := setupLogging(paths, verbose || cfg.Verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	name := identity.Resolve(cfg.Username)
	if runName != "" {
		name = identity.Resolve(runName)
	}

	var db *storage.DB
	if !runEphemeral {
		if db, err = storage.Open(paths.ConfigDir); err != nil {
			return err
		}
		defer db.Close()
	}
	store := favoritesStore(cfg, paths, db)

	n, err := node.New(node.ConfigFrom(cfg, name), node.Deps{Favorites: store})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Printf("[INFO] run: signal received, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- n.Run(ctx) }()
	select {
	case <-n.Ready():
	case err := <-errc:
		return fmt.Errorf("failed to start: %w", err)
	}

	ctl := control.NewServer(n)
	if err := ctl.Start(cfg.ControlAddr); err != nil {
		// Another instance may own the control port; mail and discovery still work
		log.Printf("[WARN] run: control service disabled: %v", err)
		ctl = nil
	}

	watchConfig(ctx, n, paths)
	if _, ok := store.(*favorites.FileStore); ok {
		if err := config.WatchFile(ctx, paths.FavoritesFile, func() {
			if _, err := n.ReloadFavorites(ctx); err != nil {
				log.Printf("[WARN] run: favorites reload failed: %v", err)
			}
		}); err != nil {
			log.Printf("[WARN] run: not watching favorites: %v", err)
		}
	}

	s := &session{
		node:        n,
		out:         os.Stdout,
		interactive: !runNoPrompt && term.IsTerminal(int(os.Stdin.Fd())),
		now:         time.Now,
	}
	if db != nil {
		s.history = db
	}
	s.header = func() string {
		return ui.RenderHeader(n.Name(), Version, cfg.BroadcastPort, n.MessagingAddr().String())
	}

	s.print(s.header())
	if s.interactive {
		s.print(ui.RenderHelpLines())
		go readPrompt(ctx, cancel, s, os.Stdin)
	} else {
		s.println(ui.RenderDim("Waiting for mail. Press Ctrl+C to exit."))
	}

	for running := true; running; {
		select {
		case ev, ok := <-n.Events():
			if !ok {
				running = false
				break
			}
			running = s.onEvent(ev)
		case <-ctx.Done():
			running = false
		}
	}

	cancel()
	if ctl != nil {
		ctl.Stop()
	}
	return <-errc
}

// readPrompt feeds stdin lines to the session until quit or EOF
func readPrompt(ctx context.Context, cancel context.CancelFunc, s *session, in io.Reader) {
	scanner := bufio.NewScanner(in)
	s.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !s.handle(ctx, scanner.Text()) {
			cancel()
			return
		}
		s.prompt()
	}
	cancel()
}

// watchConfig re-announces the new name when the username in the config
// file changes. A --name override pins the name for the whole run.
func watchConfig(ctx context.Context, n *node.Node, paths *config.Paths) {
	if runName != "" {
		return
	}
	err := config.Watch(ctx, paths.ConfigFile, func(c *config.Config) {
		name := identity.Resolve(c.Username)
		if name == n.Name() {
			return
		}
		n.SetName(name)
		log.Printf("[INFO] run: now announcing as %q", name)
	})
	if err != nil {
		log.Printf("[WARN] run: not watching config: %v", err)
	}
}

// favoritesStore picks the favorites backend for this run
func favoritesStore(cfg *config.Config, paths *config.Paths, db *storage.DB) registry.FavoritesStore {
	switch {
	case db == nil:
		return favorites.NewMemoryStore()
	case cfg.FavoritesBackend == config.BackendSQLite:
		return db
	default:
		return favorites.NewFileStore(paths.FavoritesFile)
	}
}

// setupLogging sends the standard logger to the log file, or to stderr when
// verbose. The returned func closes the file.
func setupLogging(paths *config.Paths, verbose bool) (func(), error) {
	if verbose {
		log.SetOutput(os.Stderr)
		return func() {}, nil
	}

	f, err := os.OpenFile(paths.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(f)
	log.Printf("[INFO] run: nodemailer %s starting (pid %d)", Version, os.Getpid())
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

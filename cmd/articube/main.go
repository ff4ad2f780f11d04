package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jwulff/articube/internal/app"
	"github.com/jwulff/articube/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	tea "github.com/charmbracelet/bubbletea"
)

var version = "dev"

// flags are the persistent flags shared by every command.
type flags struct {
	configPath string
	apiURL     string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:     "articube [query...]",
		Short:   "Search the ArtiCube knowledge base and keep your place while reading",
		Version: version,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(f, app.Launch{Query: strings.Join(args, " ")})
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&f.configPath, "config", config.DefaultPath(), "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&f.apiURL, "api-url", "", "ArtiCube API base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(
		newReadCmd(f),
		newSearchCmd(f),
		newHistoryCmd(f),
		newProgressCmd(f),
		newSavedCmd(f),
		newMCPCmd(f),
		newConfigCmd(f),
	)
	return rootCmd
}

func newReadCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "read <content-id>",
		Short: "Open a content item in the reader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(f, app.Launch{ContentID: args[0]})
		},
	}
}

func runTUI(f *flags, launch app.Launch) error {
	// The TUI owns the terminal, so logs only go to the file.
	rt, err := setup(f, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.log.Info("starting tui", zap.String("version", version), zap.String("api", rt.cfg.APIURL))
	p := tea.NewProgram(app.New(rt.deps(), launch), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

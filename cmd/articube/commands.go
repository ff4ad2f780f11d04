package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jwulff/articube/internal/agent"
	"github.com/jwulff/articube/internal/app"
	"github.com/jwulff/articube/internal/config"
	"github.com/jwulff/articube/internal/mcpserver"
	"github.com/jwulff/articube/internal/progress"
	"github.com/jwulff/articube/internal/ui"
	"github.com/spf13/cobra"
)

const cliWrapWidth = 100

func newSearchCmd(f *flags) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Ask a question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(f, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.search.Submit(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}
			snap := rt.search.Snapshot()
			if snap.Result == nil {
				return errors.New("search was cancelled")
			}
			return printMarkdown(cmd.OutOrStdout(), app.ResultMarkdown(snap.Result), raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering")
	return cmd
}

func newHistoryCmd(f *flags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(f, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if limit <= 0 {
				limit = rt.cfg.HistoryLimit
			}
			entries, err := rt.history.Refresh(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No searches yet.")
				return nil
			}

			t := newTable("WHEN", "QUERY")
			for _, e := range entries {
				t.Row(formatTimestamp(e.Timestamp), e.Query)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of entries (defaults to history_limit)")
	return cmd
}

func newProgressCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect saved reading progress",
	}

	var limit int
	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List recently read items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(f, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			var items []progress.ReadingProgress
			if all {
				items = rt.progress.GetAll()
			} else {
				if limit <= 0 {
					limit = rt.cfg.RecentLimit
				}
				items = rt.progress.GetRecent(limit)
			}
			writeProgressTable(cmd.OutOrStdout(), items)
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 0, "number of items (defaults to recent_limit)")
	list.Flags().BoolVar(&all, "all", false, "list every saved item")

	show := &cobra.Command{
		Use:   "show <content-id>",
		Short: "Show saved progress for one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(f, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			rec := rt.progress.Get(args[0])
			if rec == nil {
				return fmt.Errorf("no reading progress for %q", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Content:   %s\n", rec.ContentID)
			fmt.Fprintf(out, "Progress:  %d%%\n", rec.CompletionPercentage)
			fmt.Fprintf(out, "Position:  %d\n", rec.Position)
			fmt.Fprintf(out, "Last read: %s\n", rec.LastRead.Local().Format(time.DateTime))
			if rec.Notes != "" {
				fmt.Fprintf(out, "Notes:     %s\n", rec.Notes)
			}
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm <content-id>",
		Short: "Forget saved progress for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(f, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.progress.Get(args[0]) == nil {
				return fmt.Errorf("no reading progress for %q", args[0])
			}
			rt.progress.Remove(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, show, rm)
	return cmd
}

func newSavedCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "Manage saved content",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(f, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			items, err := rt.client.Saved(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing saved yet.")
				return nil
			}
			t := newTable("ID", "TITLE", "TYPE", "PROGRESS")
			for _, c := range items {
				pct := "-"
				if p := rt.progress.Get(c.ID); p != nil {
					pct = strconv.Itoa(p.CompletionPercentage) + "%"
				}
				t.Row(c.ID, c.Title, c.ContentType, pct)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}

	var position int
	var notes string
	add := &cobra.Command{
		Use:   "add <content-id>",
		Short: "Save a content item, with its local reading position and notes unless given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(f, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			id := args[0]
			var opts agent.SaveOptions
			if p := rt.progress.Get(id); p != nil {
				opts.ReadPosition = &p.Position
				opts.Notes = p.Notes
			}
			if cmd.Flags().Changed("position") {
				opts.ReadPosition = &position
			}
			if cmd.Flags().Changed("notes") {
				opts.Notes = notes
			}
			if err := rt.client.SaveContent(cmd.Context(), id, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", id)
			return nil
		},
	}
	add.Flags().IntVar(&position, "position", 0, "read position to store")
	add.Flags().StringVar(&notes, "notes", "", "notes to store")

	rm := &cobra.Command{
		Use:   "rm <content-id>",
		Short: "Remove a content item from the saved list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(f, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.client.UnsaveContent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from saved\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add, rm)
	return cmd
}

func newMCPCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve search, history and reading progress as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol.
			rt, err := setup(f, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			s := mcpserver.New(mcpserver.Deps{
				API:           rt.client,
				Progress:      rt.progress,
				SaveToHistory: rt.cfg.SaveToHistory,
				HistoryLimit:  rt.cfg.HistoryLimit,
				Logger:        rt.log,
			}, version)
			rt.log.Info("serving mcp")
			return mcpserver.Serve(s)
		},
	}
}

func newConfigCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), f.configPath)
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(f.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", f.configPath)
			}
			cfg := config.DefaultConfig()
			if f.apiURL != "" {
				cfg.APIURL = f.apiURL
			}
			if err := cfg.Save(f.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", f.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func printMarkdown(w io.Writer, md string, raw bool) error {
	if raw {
		_, err := fmt.Fprintln(w, md)
		return err
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(cliWrapWidth))
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = fmt.Fprint(w, out)
	return err
}

func writeProgressTable(w io.Writer, items []progress.ReadingProgress) {
	if len(items) == 0 {
		fmt.Fprintln(w, "Nothing read yet.")
		return
	}
	t := newTable("CONTENT", "PROGRESS", "LAST READ", "NOTES")
	for _, p := range items {
		t.Row(p.ContentID, strconv.Itoa(p.CompletionPercentage)+"%", p.LastRead.Local().Format(time.DateTime), firstLine(p.Notes))
	}
	fmt.Fprintln(w, t.String())
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(ui.DividerStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return ui.PanelTitleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

// formatTimestamp shortens an ISO-8601 timestamp, returning it unchanged
// when it does not parse.
func formatTimestamp(ts string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Local().Format("2006-01-02 15:04")
		}
	}
	return ts
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "…"
	}
	return s
}

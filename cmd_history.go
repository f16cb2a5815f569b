package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"agrimate/internal/export"
	"agrimate/internal/history"
	"agrimate/internal/kvstore"
	"agrimate/internal/models"
	"agrimate/internal/persist"
)

var (
	historyUser   string
	exportFormat  string
	exportOutput  string
	showPlainText bool

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("34"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historySearchCmd, historyShowCmd, historyExportCmd)
	historyCmd.PersistentFlags().StringVarP(&historyUser, "user", "u", "", "email of the user whose history to read")
	_ = historyCmd.MarkPersistentFlagRequired("user")
	historyExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "export format: json, yaml, markdown")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	historyShowCmd.Flags().BoolVar(&showPlainText, "plain", false, "print markdown without terminal styling")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect archived chat sessions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(cmd.Context(), func(a *history.Archive) error {
			return writeSessionTable(cmd.OutOrStdout(), a.List())
		})
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Find sessions whose title or messages contain term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(cmd.Context(), func(a *history.Archive) error {
			return writeSessionTable(cmd.OutOrStdout(), a.Search(args[0]))
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one archived session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(cmd.Context(), func(a *history.Archive) error {
			s, ok := a.Get(args[0])
			if !ok {
				return fmt.Errorf("session not found: %s", args[0])
			}
			return showSession(cmd.OutOrStdout(), s, !showPlainText)
		})
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export one archived session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exp, err := export.NewExporter(exportFormat)
		if err != nil {
			return err
		}
		return withArchive(cmd.Context(), func(a *history.Archive) error {
			s, ok := a.Get(args[0])
			if !ok {
				return fmt.Errorf("session not found: %s", args[0])
			}
			if exportOutput == "" {
				return exp.Export(s, cmd.OutOrStdout())
			}
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOutput, err)
			}
			if err := exp.Export(s, f); err != nil {
				f.Close()
				return fmt.Errorf("export session: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Session %s exported to %s\n", s.ID, exportOutput)
			return nil
		})
	},
}

func withArchive(ctx context.Context, fn func(*history.Archive) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closer, err := kvstore.Open(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closer.Close()
	return fn(openArchive(ctx, store, historyUser))
}

func openArchive(ctx context.Context, store kvstore.Store, email string) *history.Archive {
	return history.Open(ctx, persist.ForUser(store, email))
}

func writeSessionTable(w io.Writer, sessions []models.ChatSession) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tARCHIVED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			s.ID,
			s.Title,
			len(s.Messages),
			s.Timestamp.Local().Format("2006-01-02 15:04:05"),
		)
	}
	return tw.Flush()
}

func showSession(w io.Writer, s models.ChatSession, styled bool) error {
	var md bytes.Buffer
	if err := (export.MarkdownExporter{}).Export(s, &md); err != nil {
		return err
	}
	if !styled {
		_, err := w.Write(md.Bytes())
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	out, err := renderer.Render(md.String())
	if err != nil {
		return fmt.Errorf("render session: %w", err)
	}
	fmt.Fprintln(w, titleStyle.Render(s.Title))
	fmt.Fprintln(w, metaStyle.Render(fmt.Sprintf("%s · %d messages", s.ID, len(s.Messages))))
	_, err = io.WriteString(w, out)
	return err
}

// Package main implements session inspection CLI commands for ReflexRuntime.
// This file handles listing, viewing, and summarizing debug session records.
package main

import (
	"fmt"
	"strings"

	"reflexruntime/internal/session"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// =============================================================================
// SESSION INSPECTION COMMANDS
// =============================================================================

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// sessionsCmd inspects recorded debug sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded debug sessions",
	Long: `List and inspect the markdown session records written by the healing loop.

Subcommands:
  list   - List all session records, newest first
  show   - Render one session record
  stats  - Aggregate success/failure statistics`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all session records, newest first",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <filename>",
	Short: "Render one session record",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate success/failure statistics",
	RunE:  runSessionsStats,
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	reader := session.NewReader(cfg.Sessions.Dir)
	summaries, err := reader.Summaries()
	if err != nil {
		return fmt.Errorf("failed to read sessions: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No debug sessions recorded yet.")
		return nil
	}

	fmt.Println("🩹 Debug Sessions")
	fmt.Println(strings.Repeat("─", 70))
	for i, s := range summaries {
		status := failStyle.Render("FAILED ")
		if s.Success() {
			status = successStyle.Render("SUCCESS")
		}
		fmt.Printf("  %d. %s  %s  %s\n", i+1, status, s.Filename, dimStyle.Render(s.ExceptionType))
	}
	fmt.Println(strings.Repeat("─", 70))
	fmt.Printf("Total: %d sessions\n", len(summaries))
	fmt.Println("\nUse: reflex sessions show <filename>")

	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	reader := session.NewReader(cfg.Sessions.Dir)
	content, err := reader.Read(args[0])
	if err != nil {
		return fmt.Errorf("failed to read session '%s': %w", args[0], err)
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// Fall back to raw markdown if the terminal renderer cannot start.
		fmt.Println(content)
		return nil
	}

	out, err := renderer.Render(content)
	if err != nil {
		fmt.Println(content)
		return nil
	}
	fmt.Print(out)
	return nil
}

func runSessionsStats(cmd *cobra.Command, args []string) error {
	reader := session.NewReader(cfg.Sessions.Dir)
	stats, err := reader.Stats()
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}

	fmt.Println("📊 Healing Statistics")
	fmt.Println(strings.Repeat("─", 40))
	fmt.Printf("  Total sessions:  %d\n", stats.Total)
	fmt.Printf("  Successful:      %s\n", successStyle.Render(fmt.Sprintf("%d", stats.Successful)))
	fmt.Printf("  Failed:          %s\n", failStyle.Render(fmt.Sprintf("%d", stats.Failed)))
	fmt.Printf("  Success rate:    %.1f%%\n", stats.SuccessRate)
	fmt.Println(strings.Repeat("─", 40))

	breakdown, err := reader.BreakdownByException()
	if err == nil && len(breakdown) > 0 {
		fmt.Println("\nBy exception type:")
		for typ, st := range breakdown {
			fmt.Printf("  %-30s %d sessions, %.1f%% healed\n", typ, st.Total, st.SuccessRate)
		}
	}

	return nil
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsStatsCmd)
}

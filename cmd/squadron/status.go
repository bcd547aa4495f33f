package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/squadronhq/squadron/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted session progress",
	Long: `Display the progress summary from the state database: task counts,
completion percentage, blocked work, and active agents.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Path == "" {
		fmt.Println("No state database configured. Set storage.path to persist sessions.")
		return nil
	}
	if _, err := os.Stat(cfg.Storage.Path); os.IsNotExist(err) {
		fmt.Println("No session state found. Run 'squadron simulate' or start an engine first.")
		return nil
	}

	st, err := store.Open(cfg.Storage.Path, nil)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.InitializeSchema(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	summary, err := st.ProgressSummary(ctx)
	if err != nil {
		return fmt.Errorf("load progress summary: %w", err)
	}

	bold := color.New(color.Bold)
	bold.Println("Session progress")
	fmt.Printf("  Tasks:       %d total, %s completed, %d in progress\n",
		summary.TotalTasks,
		color.GreenString("%d", summary.CompletedTasks),
		summary.InProgressTasks)
	if summary.BlockedTasks > 0 {
		fmt.Printf("  Blocked:     %s\n", color.RedString("%d", summary.BlockedTasks))
	} else {
		fmt.Println("  Blocked:     0")
	}
	fmt.Printf("  Agents:      %d active\n", summary.ActiveAgents)
	fmt.Printf("  Completion:  %s\n", color.CyanString("%.1f%%", summary.CompletionPercent))
	fmt.Printf("  Remaining:   %s estimated\n", summary.EstimatedRemaining)
	return nil
}

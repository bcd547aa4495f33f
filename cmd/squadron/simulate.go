package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/squadronhq/squadron/internal/engine"
	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/internal/store"
	"github.com/squadronhq/squadron/internal/tracker"
	"github.com/squadronhq/squadron/pkg/models"
)

var exportPath string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a short orchestration session against sample tasks",
	Long: `Build a small task graph, drive two agents through it, run a standup
and a review, and print the resulting progress report. With --export the
final graph snapshot is written as YAML.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&exportPath, "export", "", "Write the final graph snapshot to this YAML file")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logging.Nop()
	if cfg.Logging.Path != "" {
		if log, err = logging.New(cfg.Logging.Path, logging.ParseLevel(cfg.Logging.Level)); err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
	}

	opts := []engine.Option{engine.WithLogger(log)}
	if cfg.Storage.Path != "" {
		st, err := store.Open(cfg.Storage.Path, log)
		if err != nil {
			return fmt.Errorf("open state database: %w", err)
		}
		opts = append(opts, engine.WithStore(store.NewResilient(st, store.DefaultRetryConfig(), log)))
	}

	e := engine.New(cfg, opts...)
	if err := e.Start(context.Background()); err != nil {
		return err
	}
	defer e.Stop()

	fmt.Printf("Session %s\n\n", e.SessionID())

	tasks := []*models.Task{
		{ID: "design", Title: "Design the schema", Priority: models.PriorityHigh, EstimatedDuration: 2 * time.Hour, RequiredResources: []string{"schema"}},
		{ID: "api", Title: "Build the API layer", Priority: models.PriorityHigh, EstimatedDuration: 4 * time.Hour, RequiredResources: []string{"schema", "ci"}},
		{ID: "ui", Title: "Build the UI", Priority: models.PriorityMedium, EstimatedDuration: 3 * time.Hour, RequiredResources: []string{"ci"}},
		{ID: "docs", Title: "Write the docs", Priority: models.PriorityLow, EstimatedDuration: time.Hour},
	}
	for _, task := range tasks {
		if err := e.AddTask(task); err != nil {
			return err
		}
	}
	for _, dep := range [][2]string{{"api", "design"}, {"ui", "api"}, {"docs", "api"}} {
		if err := e.AddDependency(dep[0], dep[1], models.DependencyHard); err != nil {
			return err
		}
	}

	if _, err := e.StartSprint("sprint-1"); err != nil {
		return err
	}

	// Agent alpha carries design through; beta picks up the unblocked work.
	progress := func(p float64) *float64 { return &p }
	if err := e.RequestTaskExecution("alpha", "design"); err != nil {
		return err
	}
	e.Agents().UpdateState("alpha", tracker.Update{Status: models.AgentStatusWorking, Progress: progress(50)})
	if _, err := e.CompleteTask("alpha", "design"); err != nil {
		return err
	}
	if err := e.RequestTaskExecution("beta", "api"); err != nil {
		return err
	}
	e.Agents().UpdateState("beta", tracker.Update{Status: models.AgentStatusWorking, Progress: progress(20)})

	record, err := e.RunStandup("sprint-1")
	if err != nil {
		return err
	}
	fmt.Printf("Standup at virtual hour %.1f with %d attendee(s)\n", record.VirtualHour, len(record.Attendees))

	if _, err := e.CompleteTask("beta", "api"); err != nil {
		return err
	}
	assessment, decision, err := e.RunReview("sprint-1")
	if err != nil {
		return err
	}
	fmt.Printf("Review: %.0f%% complete, decision: %s\n\n", assessment.CompletionRate*100, decision)

	fmt.Print(e.Progress().Report())

	if exportPath != "" {
		export, err := e.Graph().ExportData()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(export)
		if err != nil {
			return fmt.Errorf("marshal graph export: %w", err)
		}
		if err := os.WriteFile(exportPath, data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Printf("\nGraph snapshot written to %s\n", exportPath)
	}
	return nil
}

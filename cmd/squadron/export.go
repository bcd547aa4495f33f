package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/squadronhq/squadron/internal/graph"
	"github.com/squadronhq/squadron/internal/store"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the persisted task graph as YAML",
	Long: `Rebuild the task graph from the state database and write it as a
YAML snapshot, tasks in dependency order. Writes to stdout unless --out
is given.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Write the snapshot to this file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("no state database configured; set storage.path")
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
	tasks, err := st.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	edges, err := st.ListDependencies(ctx)
	if err != nil {
		return fmt.Errorf("load dependencies: %w", err)
	}

	g := graph.New(nil)
	for _, task := range tasks {
		if err := g.AddTask(task); err != nil {
			return fmt.Errorf("rebuild graph: %w", err)
		}
	}
	for _, edge := range edges {
		if err := g.AddDependency(edge.TaskID, edge.DependsOn, edge.Kind); err != nil {
			return fmt.Errorf("rebuild graph: %w", err)
		}
	}

	export, err := g.ExportData()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(export)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if exportOut == "" {
		fmt.Print(string(data))
		return nil
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	fmt.Printf("Graph snapshot written to %s\n", exportOut)
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ameen-91/exray/internal/api"
	"github.com/ameen-91/exray/internal/config"
	"github.com/ameen-91/exray/internal/devserver"
	"github.com/ameen-91/exray/internal/logparse"
	"github.com/ameen-91/exray/internal/models"
	"github.com/ameen-91/exray/internal/monitor"
	"github.com/ameen-91/exray/internal/script"
	"github.com/ameen-91/exray/internal/storage"
	"github.com/ameen-91/exray/internal/tui"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "exray",
		Short: "Run monitor for the ExRay workflows backend",
		Long:  "ExRay submits data-processing workflows and watches their runs, statuses, and logs.",
		RunE:  runTUI,
	}

	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newResultCommand())
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newSubmitCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newScriptCommand())
	rootCmd.AddCommand(newServeDevCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadClient builds the API client from configuration. Every command
// starts here.
func loadClient() (*config.Config, *api.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	client := api.NewClient(api.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
	})
	return cfg, client, nil
}

func openStore(cfg *config.Config) (*storage.Storage, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return storage.New(cfg.DBPath())
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, client, err := loadClient()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// The terminal belongs to the UI; debug logging goes to a file.
	logFile, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var p *tea.Program
	registry := monitor.NewRegistry(client, cfg.RefreshInterval, func() {
		if p != nil {
			p.Send(tui.RegistryUpdated())
		}
	})
	defer registry.Close()

	app := tui.NewApp(ctx, client, registry, cfg.LogTail, cfg.LogInterval)
	p = tea.NewProgram(app, tea.WithAltScreen())
	app.SetSend(p.Send)

	registry.Start(ctx, cfg.AutoRefresh)

	_, err = p.Run()
	return err
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("refresh")

			_, client, err := loadClient()
			if err != nil {
				return err
			}

			runs, err := client.ListRuns(cmd.Context(), force)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			for _, run := range models.SortRuns(runs) {
				fmt.Printf("%-36s %-7s %-10s %s\n",
					run.RunID, run.Workflow,
					models.PhaseLabel(run.Status.Phase),
					run.OriginalFilename)
			}
			return nil
		},
	}
	cmd.Flags().Bool("refresh", false, "Ask the backend to re-poll Argo before answering")
	return cmd
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show one run's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("refresh")

			_, client, err := loadClient()
			if err != nil {
				return err
			}

			run, err := client.GetRun(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}

			fmt.Printf("Run: %s\n", run.RunID)
			fmt.Printf("Workflow: %s\n", run.Workflow)
			fmt.Printf("Phase: %s\n", models.PhaseLabel(run.Status.Phase))
			if run.OriginalFilename != "" {
				fmt.Printf("Input: %s\n", run.OriginalFilename)
			}
			if run.Status.StartedAt != "" {
				fmt.Printf("Started: %s\n", run.Status.StartedAt)
			}
			if run.Status.FinishedAt != "" {
				fmt.Printf("Finished: %s\n", run.Status.FinishedAt)
			}
			if run.Status.Progress != "" {
				fmt.Printf("Progress: %s\n", run.Status.Progress)
			}
			if run.Status.Message != "" {
				fmt.Printf("Message: %s\n", run.Status.Message)
			}
			return nil
		},
	}
	cmd.Flags().Bool("refresh", false, "Ask the backend to re-poll Argo before answering")
	return cmd
}

func newLogsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Fetch and print a run's logs grouped by pod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tail, _ := cmd.Flags().GetInt("tail")

			_, client, err := loadClient()
			if err != nil {
				return err
			}

			raw, err := client.FetchLogs(cmd.Context(), args[0], tail)
			if err != nil {
				return err
			}

			for _, section := range logparse.Parse(raw) {
				fmt.Printf("── %s [%s] (%s)\n", section.DisplayName, section.PodName, models.PhaseLabel(section.Phase))
				if section.Logs != "" {
					fmt.Println(section.Logs)
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().Int("tail", 0, "Lines to fetch per pod (0 uses the backend default)")
	return cmd
}

func newResultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "result <run-id>",
		Short: "Print the download URL for a completed run's output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadClient()
			if err != nil {
				return err
			}

			loc, err := client.ResolveResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(loc.DownloadURL)
			return nil
		},
	}
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend connectivity to Argo and MinIO",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadClient()
			if err != nil {
				return err
			}

			report, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Overall: %s\n", report.OverallStatus)
			for name, svc := range report.Services {
				fmt.Printf("  %-8s %s", name, svc.Status)
				if svc.Message != "" {
					fmt.Printf("  (%s)", svc.Message)
				}
				fmt.Println()
			}
			if c := report.Cluster; c != nil {
				fmt.Printf("Cluster: %d nodes, %.1f/%.1f CPU, %.1f/%.1f GB memory allocatable\n",
					c.Nodes, c.AllocatableCPU, c.TotalCPU, c.AllocatableMemoryGB, c.TotalMemoryGB)
			}
			return nil
		},
	}
}

func newSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new workflow run",
	}
	cmd.AddCommand(newSubmitCTGANCommand())
	cmd.AddCommand(newSubmitLLMCommand())
	cmd.AddCommand(newSubmitCustomCommand())
	return cmd
}

// recordSubmission writes the run to local history. Submission already
// succeeded at this point, so failures only warn.
func recordSubmission(cfg *config.Config, run *models.Run, backendURL string) {
	store, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open history database: %v\n", err)
		return
	}
	defer store.Close()
	if err := store.RecordSubmission(run, backendURL); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not record submission: %v\n", err)
	}
}

func printSubmitted(run *models.Run) {
	fmt.Printf("Submitted run %s\n", run.RunID)
	fmt.Printf("Workflow: %s\n", run.Workflow)
	fmt.Printf("Phase: %s\n", models.PhaseLabel(run.Status.Phase))
}

func limitFlags(cmd *cobra.Command) {
	cmd.Flags().String("cpu-limit", "", "CPU limit for the workflow container (e.g. 2)")
	cmd.Flags().String("memory-limit", "", "Memory limit for the workflow container (e.g. 4Gi)")
}

func limitsFrom(cmd *cobra.Command) api.ResourceLimits {
	cpu, _ := cmd.Flags().GetString("cpu-limit")
	memory, _ := cmd.Flags().GetString("memory-limit")
	return api.ResourceLimits{CPU: cpu, Memory: memory}
}

func newSubmitCTGANCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctgan <data.csv>",
		Short: "Train CTGAN on a dataset and sample synthetic rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			epochs, _ := cmd.Flags().GetInt("epochs")
			samples, _ := cmd.Flags().GetInt("samples")
			discrete, _ := cmd.Flags().GetString("discrete-columns")

			cfg, client, err := loadClient()
			if err != nil {
				return err
			}

			run, err := client.SubmitCTGAN(cmd.Context(), api.CTGANSubmission{
				FilePath:        args[0],
				DiscreteColumns: discrete,
				Epochs:          epochs,
				Samples:         samples,
				Limits:          limitsFrom(cmd),
			})
			if err != nil {
				return err
			}

			recordSubmission(cfg, run, client.BaseURL())
			printSubmitted(run)
			return nil
		},
	}
	cmd.Flags().Int("epochs", 0, "Training epochs (default 300)")
	cmd.Flags().Int("samples", 0, "Synthetic rows to generate (default 1000)")
	cmd.Flags().String("discrete-columns", "", "Comma-separated discrete column names")
	limitFlags(cmd)
	return cmd
}

func newSubmitLLMCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm <data.csv>",
		Short: "Label a dataset with an LLM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, _ := cmd.Flags().GetString("labels")
			model, _ := cmd.Flags().GetString("model")
			parallelism, _ := cmd.Flags().GetInt("parallelism")

			cfg, client, err := loadClient()
			if err != nil {
				return err
			}

			run, err := client.SubmitLLM(cmd.Context(), api.LLMSubmission{
				FilePath:    args[0],
				Labels:      labels,
				Model:       model,
				Parallelism: parallelism,
				Limits:      limitsFrom(cmd),
			})
			if err != nil {
				return err
			}

			recordSubmission(cfg, run, client.BaseURL())
			printSubmitted(run)
			return nil
		},
	}
	cmd.Flags().String("labels", "", "Comma-separated label set")
	cmd.Flags().String("model", "", "Model name to label with")
	cmd.Flags().Int("parallelism", 0, "Concurrent labelling shards (default 1)")
	limitFlags(cmd)
	return cmd
}

func newSubmitCustomCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "custom <data.csv> <script.py>",
		Short: "Run a custom Python function over a dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			function, _ := cmd.Flags().GetString("function")
			pipPackages, _ := cmd.Flags().GetString("pip-packages")

			cfg, client, err := loadClient()
			if err != nil {
				return err
			}

			run, err := client.SubmitCustom(cmd.Context(), api.CustomSubmission{
				DataFilePath:   args[0],
				PythonFilePath: args[1],
				FunctionName:   function,
				PipPackages:    pipPackages,
				Limits:         limitsFrom(cmd),
			})
			if err != nil {
				return err
			}

			recordSubmission(cfg, run, client.BaseURL())
			printSubmitted(run)
			return nil
		},
	}
	cmd.Flags().String("function", "", "Entry function in the script (default \"process\")")
	cmd.Flags().String("pip-packages", "", "Comma-separated extra pip packages")
	limitFlags(cmd)
	return cmd
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List runs submitted from this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			subs, err := store.ListSubmissions(limit)
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Println("No local submissions recorded.")
				return nil
			}

			for _, sub := range subs {
				fmt.Printf("%-36s %-7s %-24s %s\n",
					sub.RunID, sub.Workflow,
					sub.SubmittedAt.Format("2006-01-02 15:04:05"),
					sub.OriginalFilename)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum entries to show")
	return cmd
}

func newScriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "script <pipeline.lua>",
		Short: "Run a Lua pipeline of submissions and waits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !script.IsScript(args[0]) {
				return fmt.Errorf("not a Lua pipeline: %s", args[0])
			}

			cfg, client, err := loadClient()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			rt := script.NewRuntime(client, store, os.Stdout)
			if err := rt.Execute(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("pipeline failed: %w", err)
			}
			fmt.Println("Pipeline completed.")
			return nil
		},
	}
}

func newServeDevCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-dev",
		Short: "Serve a local stub backend with canned runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			srv := devserver.New(logger)

			logger.Info("dev server listening", "addr", addr)
			return http.ListenAndServe(addr, srv.Handler())
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8000", "Listen address")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"taskloom/internal/config"
	"taskloom/internal/handlers"
	"taskloom/internal/jobfile"
	"taskloom/internal/orchestrator"
	"taskloom/internal/store"
	"taskloom/pkg/models"
)

var (
	runDBPath         string
	runMaxTasks       int
	runMaxDepth       int
	runTimeout        time.Duration
	runAbortOnFailure bool
	runVerbose        bool
)

var runCmd = &cobra.Command{
	Use:   "run <job-file>",
	Short: "Run a job definition file to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		opts := cfg.Job.Options()
		if cmd.Flags().Changed("max-tasks") {
			opts.MaxTasks = runMaxTasks
		}
		if cmd.Flags().Changed("max-depth") {
			opts.MaxDepth = runMaxDepth
		}
		if cmd.Flags().Changed("timeout") {
			opts.Timeout = runTimeout
		}
		if cmd.Flags().Changed("abort-on-failure") {
			opts.AbortOnFailure = runAbortOnFailure
		}
		if cmd.Flags().Changed("verbose") {
			opts.Verbose = runVerbose
		}

		def, err := jobfile.ParseFile(args[0])
		if err != nil {
			return err
		}
		job, err := def.Job(opts)
		if err != nil {
			return err
		}

		if job.Verbose {
			logPath := cfg.Log.Debug
			if logPath == "" {
				logPath = ".taskloom/logs/debug.log"
			}
			logger, err := orchestrator.NewDebugLogger(logPath)
			if err != nil {
				return err
			}
			defer logger.Close()
			orchestrator.SetDebugLogger(logger)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		registry := handlers.Default()
		engine := orchestrator.New(job, registry.Lookup)
		runErr := engine.Run(ctx)

		printSummary(job)

		if runDBPath != "" {
			st, err := store.Open(runDBPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SaveJob(context.Background(), job); err != nil {
				return err
			}
			fmt.Printf("\nJob %s saved to %s\n", job.ID, runDBPath)
		}

		if runErr != nil {
			return runErr
		}
		if job.Status == models.JobStatusFailed {
			return fmt.Errorf("job %s failed", job.ID)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDBPath, "db", "", "SQLite path to persist the job record")
	runCmd.Flags().IntVar(&runMaxTasks, "max-tasks", models.DefaultMaxTasks, "Maximum number of tasks, spawned children included")
	runCmd.Flags().IntVar(&runMaxDepth, "max-depth", models.DefaultMaxDepth, "Maximum spawn depth")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Wall-clock budget for the whole job (0 disables)")
	runCmd.Flags().BoolVar(&runAbortOnFailure, "abort-on-failure", false, "Abort pending tasks once any task fails")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Write an orchestration debug log")
}

// printSummary prints one status line per task plus the job outcome.
func printSummary(job *models.Job) {
	tasks := job.TaskList()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	fmt.Println()
	for _, task := range tasks {
		switch task.Status {
		case models.TaskStatusSucceeded:
			printStatus("✓", fmt.Sprintf("%s (%s.%s)", task.ID, task.Service, task.Command), color.FgGreen)
		case models.TaskStatusAborted:
			printStatus("⚠", fmt.Sprintf("%s (%s.%s) aborted", task.ID, task.Service, task.Command), color.FgYellow)
		case models.TaskStatusFailed:
			msg := fmt.Sprintf("%s (%s.%s)", task.ID, task.Service, task.Command)
			if errText, ok := task.Output["error"].(string); ok {
				msg += ": " + errText
			}
			printStatus("✗", msg, color.FgRed)
		default:
			printStatus("…", fmt.Sprintf("%s (%s.%s) incomplete", task.ID, task.Service, task.Command), color.FgWhite)
		}
	}

	fmt.Println()
	switch job.Status {
	case models.JobStatusSucceeded:
		fmt.Printf("%s Job %s succeeded (%d tasks)\n", color.GreenString("✓"), job.Name, len(tasks))
	default:
		fmt.Printf("%s Job %s %s (%d/%d tasks completed)\n", color.RedString("✗"),
			job.Name, job.Status, job.CompletedCount(), len(tasks))
	}
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("  %s %s\n", c.Sprint(symbol), message)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobrunner/internal/appconfig"
	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
	"github.com/nextlevelbuilder/jobrunner/internal/scheduler"
)

// jobCmd groups job management subcommands: each loads the store
// directly (no HTTP round trip) and prints JSON to stdout.
func jobCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "job",
		Short: "Manage scheduled jobs",
	}

	var (
		file        string
		description string
		createdBy   string
		enabledOnly bool
		jobType     string
		limit       int
		allowOverlap bool
	)

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a job from a YAML configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withJobStore(c, func(a *app) error {
				blob, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read config file: %w", err)
				}
				job := &jobstore.Job{
					Name:        args[0],
					Description: description,
					Enabled:     true,
					YAMLConfig:  string(blob),
					CreatedBy:   createdBy,
				}
				id, err := a.jobs.CreateJob(job)
				if err != nil {
					return err
				}
				if a.loop != nil {
					a.loop.Notify(scheduler.MutationEvent{JobID: id, Kind: scheduler.MutationCreated})
				}
				return printJSON(map[string]string{"job_id": id})
			})
		},
	}
	create.Flags().StringVarP(&file, "file", "f", "", "path to YAML job configuration")
	create.Flags().StringVar(&description, "description", "", "human-readable description")
	create.Flags().StringVar(&createdBy, "created-by", "", "identity recorded as the job's creator")
	_ = create.MarkFlagRequired("file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(c *cobra.Command, args []string) error {
			return withJobStore(c, func(a *app) error {
				jobs, err := a.jobs.ListJobs(jobstore.JobFilter{EnabledOnly: enabledOnly, JobType: jobType, Limit: limit})
				if err != nil {
					return err
				}
				return printJSON(jobs)
			})
		},
	}
	list.Flags().BoolVar(&enabledOnly, "enabled-only", false, "only show enabled jobs")
	list.Flags().StringVar(&jobType, "type", "", "filter by job type")
	list.Flags().IntVar(&limit, "limit", 0, "maximum rows to return")

	get := &cobra.Command{
		Use:   "get <job_id>",
		Short: "Show a job's stored record, parsed config, and flat view",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withJobStore(c, func(a *app) error {
				job, cfg, flat, err := a.jobs.GetJob(args[0])
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"job": job, "config": cfg, "flat_view": flat})
			})
		},
	}

	update := &cobra.Command{
		Use:   "update <job_id>",
		Short: "Replace a job's YAML configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withJobStore(c, func(a *app) error {
				blob, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read config file: %w", err)
				}
				if err := a.jobs.UpdateJob(args[0], string(blob)); err != nil {
					return err
				}
				if a.loop != nil {
					a.loop.Notify(scheduler.MutationEvent{JobID: args[0], Kind: scheduler.MutationUpdated})
				}
				return printJSON(map[string]string{"status": "ok"})
			})
		},
	}
	update.Flags().StringVarP(&file, "file", "f", "", "path to the replacement YAML configuration")
	_ = update.MarkFlagRequired("file")

	del := &cobra.Command{
		Use:   "delete <job_id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withJobStore(c, func(a *app) error {
				if err := a.jobs.DeleteJob(args[0]); err != nil {
					return err
				}
				if a.loop != nil {
					a.loop.Notify(scheduler.MutationEvent{JobID: args[0], Kind: scheduler.MutationDeleted})
				}
				return printJSON(map[string]string{"status": "ok"})
			})
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <job_id>",
		Short: "Flip (or explicitly set) a job's enabled state",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withJobStore(c, func(a *app) error {
				enabled, err := a.jobs.ToggleJob(args[0], nil)
				if err != nil {
					return err
				}
				if a.loop != nil {
					a.loop.Notify(scheduler.MutationEvent{JobID: args[0], Kind: scheduler.MutationToggled})
				}
				return printJSON(map[string]bool{"enabled": enabled})
			})
		},
	}

	run := &cobra.Command{
		Use:   "run <job_id>",
		Short: "Manually trigger a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withJobStore(c, func(a *app) error {
				exec, err := a.exec.ExecuteJob(c.Context(), args[0], jobstore.ModeManual, "cli", allowOverlap, 0)
				if err != nil {
					return err
				}
				if exec == nil {
					return fmt.Errorf("job is disabled")
				}
				return printJSON(exec)
			})
		},
	}
	run.Flags().BoolVar(&allowOverlap, "allow-overlap", false, "permit a concurrent run even if one is already live")

	logs := &cobra.Command{
		Use:   "logs <job_id>",
		Short: "List execution history for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withJobStore(c, func(a *app) error {
				execs, err := a.executions.ListExecutions(jobstore.ExecutionFilter{JobID: args[0], Limit: limit})
				if err != nil {
					return err
				}
				return printJSON(execs)
			})
		},
	}
	logs.Flags().IntVar(&limit, "limit", 0, "maximum rows to return")

	root.AddCommand(create, list, get, update, del, toggle, run, logs)
	return root
}

// withJobStore opens the configured store, runs fn, and closes it.
func withJobStore(c *cobra.Command, fn func(a *app) error) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	a, err := buildApp(c.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

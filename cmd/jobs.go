package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brandscope/intel-cli/internal/model"
	"github.com/brandscope/intel-cli/internal/store"
)

var (
	jobsSearch string
	jobsStatus string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List collection jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var jobs []model.CollectionJob
		switch {
		case jobsSearch != "":
			if env.Elastic == nil {
				return eris.New("--search requires the elastic index (elastic.enabled)")
			}
			jobs, err = env.Elastic.SearchJobs(ctx, jobsSearch, jobsLimit)
		case jobsStatus != "":
			jobs, err = env.Store.ListJobs(ctx, store.JobFilter{
				Status: model.JobStatus(jobsStatus),
				Limit:  jobsLimit,
			})
		default:
			jobs, err = env.Manager.ListActive(ctx)
		}
		if err != nil {
			return err
		}

		if len(jobs) == 0 {
			cmd.Println("no jobs")
			return nil
		}
		for _, j := range jobs {
			cmd.Printf("%s  %-11s %3d%%  %s vs %s  (%d/%d sources)\n",
				j.ID, j.Status, j.Progress, j.BrandID, j.CompetitorID,
				len(j.CompletedSources), len(j.RequestedSources))
		}
		return nil
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsSearch, "search", "", "full-text search via the elastic index")
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 25, "max jobs to list")
	rootCmd.AddCommand(jobsCmd)
}

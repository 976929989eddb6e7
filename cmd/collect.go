package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandscope/intel-cli/internal/model"
)

var (
	collectBrand      string
	collectCompetitor string
	collectArea       string
	collectSources    []string
	collectJSON       bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection job synchronously",
	Long:  "Submits a job for the given brand/competitor pair and waits for it to finish, printing the collected signal bundles.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sources, err := parseSources(collectSources)
		if err != nil {
			return err
		}

		j, err := env.Manager.StartJob(ctx, model.CollectRequest{
			BrandID:      collectBrand,
			CompetitorID: collectCompetitor,
			AreaID:       collectArea,
			Sources:      sources,
		})
		if err != nil {
			return err
		}
		zap.L().Info("job started",
			zap.String("job_id", j.ID),
			zap.Int("sources", len(j.RequestedSources)))

		// Poll until terminal; interrupt cancels the job.
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				env.Manager.CancelJob(cmd.Context(), j.ID)
				return eris.New("collection interrupted")
			case <-ticker.C:
			}

			cur, err := env.Manager.GetStatus(ctx, j.ID)
			if err != nil {
				return err
			}
			if cur.Status.Terminal() {
				j = cur
				break
			}
			zap.L().Debug("collecting",
				zap.Int("progress", cur.Progress),
				zap.String("step", cur.CurrentStep))
		}

		if j.Status != model.JobStatusCompleted {
			return eris.Errorf("job %s ended %s: %s", j.ID, j.Status, j.Error)
		}

		data, err := env.Manager.GetResult(ctx, j.ID)
		if err != nil {
			return err
		}

		if collectJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		}

		printBundle(cmd, "brand "+data.BrandID, data.BrandData)
		printBundle(cmd, "competitor "+data.CompetitorID, data.CompetitorData)
		return nil
	},
}

func printBundle(cmd *cobra.Command, label string, bundle model.EntitySignalBundle) {
	cmd.Printf("%s:\n", label)
	for _, kind := range model.AllSources() {
		p, ok := bundle[kind]
		if !ok || p == nil {
			continue
		}
		cmd.Printf("  %-17s sentiment=%+.2f mentions=%-5d provenance=%s\n",
			kind, p.Sentiment, p.Mentions, p.Provenance)
	}
}

func init() {
	collectCmd.Flags().StringVar(&collectBrand, "brand", "", "brand entity id (required)")
	collectCmd.Flags().StringVar(&collectCompetitor, "competitor", "", "competitor entity id (required)")
	collectCmd.Flags().StringVar(&collectArea, "area", "", "business area id")
	collectCmd.Flags().StringSliceVar(&collectSources, "sources", nil, "sources to collect (default all)")
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "print raw result JSON")
	_ = collectCmd.MarkFlagRequired("brand")
	_ = collectCmd.MarkFlagRequired("competitor")
	rootCmd.AddCommand(collectCmd)
}

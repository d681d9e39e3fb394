package cmd

import (
	"context"
	"fmt"

	"github.com/marsik/reid-mine/internal/config"
	"github.com/marsik/reid-mine/internal/database/postgres"
	"github.com/marsik/reid-mine/internal/eval"
	"github.com/spf13/cobra"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate retrieval quality (CMC and mAP)",
	Long: `Eval splits the store by camera: samples from the query camera form the
query set, everything else forms the gallery. Each query is ranked against
the gallery and the CMC curve and mean average precision are reported.`,
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().Int("query-cam", 0, "Camera whose samples form the query set")
	evalCmd.Flags().Int("max-rank", 20, "Highest CMC rank to compute")
	_ = evalCmd.MarkFlagRequired("query-cam")
}

func runEval(cmd *cobra.Command, args []string) error {
	queryCam, _ := cmd.Flags().GetInt("query-cam")
	maxRank, _ := cmd.Flags().GetInt("max-rank")

	ctx := context.Background()
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set to evaluate stored samples")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	repo := postgres.NewSampleRepository(pool)

	queries, err := repo.ListByCamera(ctx, queryCam, true)
	if err != nil {
		return fmt.Errorf("loading query set: %w", err)
	}
	gallery, err := repo.ListByCamera(ctx, queryCam, false)
	if err != nil {
		return fmt.Errorf("loading gallery: %w", err)
	}
	if len(queries) == 0 {
		return fmt.Errorf("no samples on camera %d", queryCam)
	}
	if len(gallery) == 0 {
		return fmt.Errorf("no gallery samples outside camera %d", queryCam)
	}

	queryEmb := make([][]float32, len(queries))
	querySamples := make([]eval.Sample, len(queries))
	for i, s := range queries {
		queryEmb[i] = s.Embedding
		querySamples[i] = eval.Sample{PersonID: s.PersonID, CamID: s.CamID}
	}
	galleryEmb := make([][]float32, len(gallery))
	gallerySamples := make([]eval.Sample, len(gallery))
	for i, s := range gallery {
		galleryEmb[i] = s.Embedding
		gallerySamples[i] = eval.Sample{PersonID: s.PersonID, CamID: s.CamID}
	}

	fmt.Printf("Evaluating %d queries against %d gallery samples\n", len(queries), len(gallery))

	report, err := eval.Evaluate(queryEmb, galleryEmb, querySamples, gallerySamples, maxRank)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	for _, r := range []int{1, 5, 10, 20} {
		if r <= len(report.CMC) {
			fmt.Printf("Rank-%-3d %.4f\n", r, report.CMC[r-1])
		}
	}
	fmt.Printf("mAP      %.4f\n", report.MAP)
	if report.Skipped > 0 {
		fmt.Printf("Skipped %d queries without a cross-camera match\n", report.Skipped)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/marsik/reid-mine/internal/batch"
	"github.com/marsik/reid-mine/internal/config"
	"github.com/marsik/reid-mine/internal/database/postgres"
	"github.com/marsik/reid-mine/internal/triplet"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Run batch-hard mining over stored samples",
	Long: `Mine assembles identity-balanced batches of P identities with K samples
each from the sample store, runs hard example mining on every batch and
reports the triplet loss and ordering precision.`,
	RunE: runMine,
}

func init() {
	rootCmd.AddCommand(mineCmd)

	mineCmd.Flags().Int("persons", 0, "P: identities per batch (default from config)")
	mineCmd.Flags().Int("per-person", 0, "K: samples per identity (default from config)")
	mineCmd.Flags().Float64("margin", 0, "Ranking loss margin (default from config)")
	mineCmd.Flags().Bool("soft", false, "Use the soft-margin loss instead of a fixed margin")
	mineCmd.Flags().Bool("normalize", false, "L2-normalize embeddings before mining")
	mineCmd.Flags().Int("batches", 10, "Number of batches to mine")
	mineCmd.Flags().Int64("seed", 0, "Sampler seed (0 uses the current time)")
}

func runMine(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	p := cfg.Mining.Persons
	if cmd.Flags().Changed("persons") {
		p, _ = cmd.Flags().GetInt("persons")
	}
	k := cfg.Mining.PerPerson
	if cmd.Flags().Changed("per-person") {
		k, _ = cmd.Flags().GetInt("per-person")
	}
	margin := cfg.Mining.Margin
	if cmd.Flags().Changed("margin") {
		margin, _ = cmd.Flags().GetFloat64("margin")
	}
	soft := cfg.Mining.Soft
	if cmd.Flags().Changed("soft") {
		soft, _ = cmd.Flags().GetBool("soft")
	}
	normalize := cfg.Mining.Normalize
	if cmd.Flags().Changed("normalize") {
		normalize, _ = cmd.Flags().GetBool("normalize")
	}
	batches, _ := cmd.Flags().GetInt("batches")
	seed, _ := cmd.Flags().GetInt64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set to mine stored samples")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	samples, err := postgres.NewSampleRepository(pool).All(ctx)
	if err != nil {
		return fmt.Errorf("loading samples: %w", err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("the sample store is empty")
	}

	items := make([]batch.Item, len(samples))
	for i, s := range samples {
		items[i] = batch.Item{Index: i, PersonID: s.PersonID}
	}

	sampler, err := batch.NewPKSampler(items, p, k, seed)
	if err != nil {
		return fmt.Errorf("building sampler: %w", err)
	}

	var loss *triplet.Loss
	if soft {
		loss = triplet.NewSoft()
		fmt.Printf("Mining %d batches of %dx%d with soft margin (seed %d)\n", batches, p, k, seed)
	} else {
		loss = triplet.New(margin)
		fmt.Printf("Mining %d batches of %dx%d with margin %.3f (seed %d)\n", batches, p, k, margin, seed)
	}

	bar := progressbar.Default(int64(batches))
	var sumLoss, sumPrec float64
	for b := 0; b < batches; b++ {
		indices, labels := sampler.Next()

		embeddings := make([][]float32, len(indices))
		for i, idx := range indices {
			embeddings[i] = samples[idx].Embedding
		}

		res, err := loss.Forward(embeddings, labels, normalize)
		if err != nil {
			return fmt.Errorf("mining batch %d: %w", b, err)
		}
		sumLoss += res.Loss
		sumPrec += res.Precision
		_ = bar.Add(1)
	}

	fmt.Printf("Mean loss:      %.6f\n", sumLoss/float64(batches))
	fmt.Printf("Mean precision: %.4f\n", sumPrec/float64(batches))
	return nil
}

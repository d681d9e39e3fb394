package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/marsik/reid-mine/internal/config"
	"github.com/marsik/reid-mine/internal/database"
	"github.com/marsik/reid-mine/internal/database/postgres"
	"github.com/marsik/reid-mine/internal/feature"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var embedCmd = &cobra.Command{
	Use:   "embed <image>...",
	Short: "Embed person crops and store them",
	Long: `Embed sends each image to the feature-extraction server and stores the
resulting vector under the given identity and camera. Sequence numbers are
assigned automatically per (person, camera) pair.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)

	embedCmd.Flags().Int("person", 0, "Identity label for the crops")
	embedCmd.Flags().Int("cam", 0, "Camera the crops were captured by")
	_ = embedCmd.MarkFlagRequired("person")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	personID, _ := cmd.Flags().GetInt("person")
	camID, _ := cmd.Flags().GetInt("cam")

	ctx := context.Background()
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set to store samples")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	if err := pool.Migrate(ctx, cfg.Extractor.Dim); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	repo := postgres.NewSampleRepository(pool)
	extractor := feature.NewClient(cfg.Extractor.URL, cfg.Extractor.Model)

	bar := progressbar.Default(int64(len(args)))
	stored := 0
	for _, path := range args {
		_ = bar.Add(1)

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		res, err := extractor.Extract(ctx, data)
		if err != nil {
			return fmt.Errorf("embedding %s: %w", path, err)
		}

		seq, err := repo.NextSeq(ctx, personID, camID)
		if err != nil {
			return fmt.Errorf("assigning sequence for %s: %w", path, err)
		}

		sample := &database.StoredSample{
			UID:       uuid.NewString(),
			PersonID:  personID,
			CamID:     camID,
			Seq:       seq,
			Embedding: res.Embedding,
			Model:     res.Model,
			Dim:       res.Dim,
		}
		if err := repo.Save(ctx, sample); err != nil {
			return fmt.Errorf("storing %s: %w", path, err)
		}
		stored++
	}

	fmt.Printf("Stored %d samples for person %d on camera %d\n", stored, personID, camID)
	return nil
}

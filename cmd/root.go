package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reid-mine",
	Short: "A toolkit for person re-identification training support",
	Long: `reid-mine computes batch-hard triplet mining for person re-identification:
pairwise embedding distances, hardest positive/negative selection and the
margin-based ranking loss, plus sample storage, gallery retrieval and
CMC/mAP evaluation around it.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

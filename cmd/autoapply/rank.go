package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pranavsaji/autoapply-pro/internal/config"
	"github.com/pranavsaji/autoapply-pro/internal/decision"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

var rankCommand = &cobra.Command{
	Use:   "rank",
	Short: "Score and rank job postings against a profile",
	Long: `Scores every posting in the jobs file against the candidate profile using
the configured preference weights, drops postings below the threshold, and
prints the survivors in rank order.`,
	RunE: runRankCmd,
}

var (
	rankConfigPath  string
	rankProfilePath string
	rankJobsPath    string
)

func init() {
	rankCommand.Flags().StringVar(&rankConfigPath, "config", "", "Path to config.yaml (optional)")
	rankCommand.Flags().StringVarP(&rankProfilePath, "profile", "p", "", "Path to profile JSON file")
	rankCommand.Flags().StringVarP(&rankJobsPath, "jobs", "j", "", "Path to jobs JSON file")
	_ = rankCommand.MarkFlagRequired("profile")
	_ = rankCommand.MarkFlagRequired("jobs")
	rootCmd.AddCommand(rankCommand)
}

func runRankCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(rankConfigPath)
	if err != nil {
		return err
	}

	profile, err := loadProfile(rankProfilePath)
	if err != nil {
		return err
	}

	var jobs []types.JobPosting
	if err := loadJSON(rankJobsPath, &jobs); err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	ranked := decision.FilterRank(profile, jobs, cfg.Prefs)
	fmt.Printf("%d of %d postings at or above threshold %.2f\n\n", len(ranked), len(jobs), cfg.Prefs.Threshold)
	for i, job := range ranked {
		score := decision.Score(profile, job, cfg.Prefs)
		fmt.Printf("%2d. [%.2f] %s at %s (%s)\n    %s\n", i+1, score, job.Title, job.Company, job.Source, job.URL)
	}
	return nil
}

func loadProfile(path string) (types.Profile, error) {
	var profile types.Profile
	if err := loadJSON(path, &profile); err != nil {
		return types.Profile{}, fmt.Errorf("failed to load profile: %w", err)
	}
	return profile, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

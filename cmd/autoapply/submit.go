package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pranavsaji/autoapply-pro/internal/config"
	"github.com/pranavsaji/autoapply-pro/internal/driver"
	"github.com/pranavsaji/autoapply-pro/internal/driver/greenhouse"
	"github.com/pranavsaji/autoapply-pro/internal/driver/lever"
	"github.com/pranavsaji/autoapply-pro/internal/events"
	"github.com/pranavsaji/autoapply-pro/internal/orchestrator"
	"github.com/pranavsaji/autoapply-pro/internal/session"
	"github.com/pranavsaji/autoapply-pro/internal/store"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

var submitCommand = &cobra.Command{
	Use:   "submit",
	Short: "Run one application end-to-end with an interactive approval gate",
	Long: `Assembles a plan for one posting, fills the application form in a real
browser session, then shows the captured review snapshot and asks for
approval on the terminal before performing the submit.`,
	RunE: runSubmitCmd,
}

var (
	submitConfigPath  string
	submitProfilePath string
	submitJobPath     string
)

func init() {
	submitCommand.Flags().StringVar(&submitConfigPath, "config", "", "Path to config.yaml (optional)")
	submitCommand.Flags().StringVarP(&submitProfilePath, "profile", "p", "", "Path to profile JSON file")
	submitCommand.Flags().StringVarP(&submitJobPath, "job", "j", "", "Path to job posting JSON file")
	_ = submitCommand.MarkFlagRequired("profile")
	_ = submitCommand.MarkFlagRequired("job")
	rootCmd.AddCommand(submitCommand)
}

func runSubmitCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.Load(submitConfigPath)
	if err != nil {
		return err
	}

	profile, err := loadProfile(submitProfilePath)
	if err != nil {
		return err
	}
	var job types.JobPosting
	if err := loadJSON(submitJobPath, &job); err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	assembler, closeGen, err := newAssembler(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGen()

	plan, err := assembler.Build(ctx, profile, job)
	if err != nil {
		return err
	}

	provider := session.NewChromeProvider(ctx, session.Options{
		Headless: cfg.Headless,
		PoolSize: 1,
	})
	defer provider.Close()

	registry := driver.NewRegistry(
		greenhouse.New(cfg.StepTimeout.Std()),
		lever.New(cfg.StepTimeout.Std()),
	)
	orch := orchestrator.New(registry, provider, store.NewMemory(), events.NewHub(), orchestrator.Config{
		MaxRetries:  cfg.MaxRetries,
		SnapshotDir: cfg.SnapshotDir,
	})

	attempt := types.NewAttempt(plan)
	fmt.Printf("Preparing application for %s at %s...\n", job.Title, job.Company)
	if err := orch.Run(ctx, attempt); err != nil {
		return fmt.Errorf("attempt failed at step %q: %w", attempt.LastStep, err)
	}

	if attempt.State == types.StateSubmitted {
		// Approval policy was off; the attempt went straight through.
		fmt.Println("Application submitted.")
		return nil
	}

	fmt.Printf("\nReview screenshot: %s\n\n%s\n", attempt.Snapshot.ScreenshotPath, attempt.Snapshot.RenderedText)
	approved, err := promptApproval(os.Stdin)
	if err != nil {
		return err
	}

	if err := orch.Decide(ctx, attempt, approved); err != nil {
		return err
	}
	if !approved {
		fmt.Println("Application rejected, nothing was submitted.")
		return nil
	}

	fmt.Println("Submitting...")
	if err := orch.Finalize(ctx, attempt); err != nil {
		return err
	}
	fmt.Printf("Application submitted at %s.\n", attempt.UpdatedAt.Format(time.RFC3339))
	return nil
}

func promptApproval(in *os.File) (bool, error) {
	fmt.Print("Submit this application? [y/N]: ")
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read decision: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

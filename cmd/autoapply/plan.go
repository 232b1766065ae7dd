package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/pranavsaji/autoapply-pro/internal/assemble"
	"github.com/pranavsaji/autoapply-pro/internal/config"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

var planCommand = &cobra.Command{
	Use:   "plan",
	Short: "Assemble an application plan for one job posting",
	Long: `Builds the full application plan for a posting: identity answers from the
profile, a tailored cover letter and free-text answers from the text
generator, and prints the result as JSON for review. Without a Gemini API
key the plan degrades to identity answers only.`,
	RunE: runPlanCmd,
}

var (
	planConfigPath  string
	planProfilePath string
	planJobPath     string
)

func init() {
	planCommand.Flags().StringVar(&planConfigPath, "config", "", "Path to config.yaml (optional)")
	planCommand.Flags().StringVarP(&planProfilePath, "profile", "p", "", "Path to profile JSON file")
	planCommand.Flags().StringVarP(&planJobPath, "job", "j", "", "Path to job posting JSON file")
	_ = planCommand.MarkFlagRequired("profile")
	_ = planCommand.MarkFlagRequired("job")
	rootCmd.AddCommand(planCommand)
}

func runPlanCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.Load(planConfigPath)
	if err != nil {
		return err
	}

	profile, err := loadProfile(planProfilePath)
	if err != nil {
		return err
	}

	var job types.JobPosting
	if err := loadJSON(planJobPath, &job); err != nil {
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

	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// newAssembler wires the text generator from config. A missing API key is not
// an error; the assembler then produces identity-only fallback plans.
func newAssembler(ctx context.Context, cfg config.Config) (*assemble.Assembler, func(), error) {
	opts := assemble.Options{
		CoverLetters: assemble.CoverLetterPolicy(cfg.CoverLetters),
		RequireHITL:  cfg.ApprovalRequired(),
	}

	if cfg.GeminiKey == "" {
		log.Println("[plan] no GEMINI_API_KEY set, plans will carry identity answers only")
		return assemble.New(nil, opts), func() {}, nil
	}

	gen, err := assemble.NewGeminiGenerator(ctx, cfg.GeminiKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create text generator: %w", err)
	}
	closeGen := func() {
		if err := gen.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close generator: %v\n", err)
		}
	}
	return assemble.New(gen, opts), closeGen, nil
}

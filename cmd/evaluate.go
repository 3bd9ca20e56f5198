package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-analyzer/internal/prompt"
	"github.com/spigell/resume-analyzer/internal/screening"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score resumes against a job description and rank them",
	Long: "Evaluate one or more resumes against a job description with weighted scoring.\n" +
		"A single resume without a job description falls back to field extraction.",
	Run: func(cmd *cobra.Command, _ []string) {
		evaluate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	defaults := prompt.DefaultWeights()
	evaluateCmd.Flags().StringSliceP("resume", "r", nil, "resume file (.txt, .md); repeat to rank several")
	evaluateCmd.Flags().StringP("jd", "J", "", "job description file")
	evaluateCmd.Flags().String("jd-text", "", "job description text")
	evaluateCmd.Flags().Int("weight-skills", defaults.Skills, "skills weight, percent")
	evaluateCmd.Flags().Int("weight-experience", defaults.Experience, "experience weight, percent")
	evaluateCmd.Flags().Int("weight-education", defaults.Education, "education weight, percent")
	evaluateCmd.Flags().Int("weight-soft-skills", defaults.SoftSkills, "soft skills weight, percent")
	evaluateCmd.Flags().Int("min-score", 0, "drop candidates scoring below this value")
	evaluateCmd.Flags().StringP("exclude-file", "e", "", "file listing candidates to skip; rejected candidates are appended")
	evaluateCmd.Flags().Bool("dump", false, "dump the ranked candidates to a temporary json file")
	addCallFlags(evaluateCmd)
}

func evaluate(cmd *cobra.Command) {
	ctx, cancel := commandContext()
	defer cancel()

	rt := setup(ctx)
	defer rt.close()
	logger := rt.logger

	opts, err := callOptions(cmd)
	if err != nil {
		logger.Fatal("parsing flags", zap.Error(err))
	}

	paths, _ := cmd.Flags().GetStringSlice("resume")
	jdPath, _ := cmd.Flags().GetString("jd")
	jdText, _ := cmd.Flags().GetString("jd-text")
	asJSON, _ := cmd.Flags().GetBool("output-json")

	if len(paths) == 0 {
		logger.Fatal("at least one --resume is required")
	}

	weights := &prompt.Weights{}
	weights.Skills, _ = cmd.Flags().GetInt("weight-skills")
	weights.Experience, _ = cmd.Flags().GetInt("weight-experience")
	weights.Education, _ = cmd.Flags().GetInt("weight-education")
	weights.SoftSkills, _ = cmd.Flags().GetInt("weight-soft-skills")

	jd := ""
	if jdPath != "" || jdText != "" {
		if jd, err = readInput("job description", jdPath, jdText); err != nil {
			logger.Fatal("reading input", zap.Error(err))
		}
	}

	if len(paths) == 1 {
		resume, err := readInput("resume", paths[0], "")
		if err != nil {
			logger.Fatal("reading input", zap.Error(err))
		}
		payload, err := rt.engine.EvaluateMatch(ctx, resume, jd, weights, opts)
		if err != nil {
			logger.Fatal("evaluation failed", zap.Error(err))
		}
		if err := printJSON(payload); err != nil {
			logger.Fatal("printing result", zap.Error(err))
		}
		return
	}

	if strings.TrimSpace(jd) == "" {
		logger.Fatal("a job description is required to rank several resumes")
	}

	candidates := &screening.Candidates{}
	for _, path := range paths {
		resume, err := readInput("resume", path, "")
		if err != nil {
			logger.Fatal("reading input", zap.Error(err))
		}
		candidates.Items = append(candidates.Items, &screening.Candidate{ID: path, Resume: resume})
	}

	minScore, _ := cmd.Flags().GetInt("min-score")
	excludeFile, _ := cmd.Flags().GetString("exclude-file")

	steps := []screening.Filter{
		screening.NewDuplicates(),
		screening.NewExcludeFile(excludeFile),
		screening.NewEvaluate(minScore, excludeFile),
	}

	for _, status := range screening.Describe(steps) {
		logger.Debug("screening filter", zap.String("name", status.Name), zap.Bool("enabled", status.Enabled), zap.Any("details", status.Details))
	}

	ranked, err := screening.Run(ctx, screening.Deps{
		Evaluator: rt.engine,
		Logger:    logger,
		JD:        jd,
		Weights:   weights,
		UseCache:  opts.UseCache,
	}, steps, candidates)
	if err != nil {
		logger.Fatal("screening failed", zap.Error(err))
	}
	ranked.Rank()

	if dump, _ := cmd.Flags().GetBool("dump"); dump {
		filename, err := ranked.DumpToTmpFile()
		if err != nil {
			logger.Fatal("dumping results", zap.Error(err))
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
	}

	if asJSON {
		if err := printJSON(ranked); err != nil {
			logger.Fatal("printing result", zap.Error(err))
		}
		return
	}

	rows := make([][]string, 0, ranked.Len())
	for i, c := range ranked.Items {
		score, status, reason := "-", "Error", c.Error
		if c.Evaluation != nil {
			score = strconv.Itoa(c.Evaluation.Score)
			status = c.Evaluation.Status
			reason = c.Evaluation.Reason
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), c.ID, score, status, reason})
	}
	fmt.Println(renderTable(
		[]string{"#", "Resume", "Score", "Status", "Reason"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight},
	))
}

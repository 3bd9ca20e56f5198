package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/resume-analyzer/internal/engine"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze how well a resume matches a job description",
	Long: "Analyze one or more resumes against a job description from the point of view of a persona.\n" +
		"Several --resume flags run a batch analysis.",
	Run: func(cmd *cobra.Command, _ []string) {
		analyze(cmd)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringSliceP("resume", "r", nil, "resume file (.txt, .md), '-' for stdin; repeat for a batch")
	analyzeCmd.Flags().StringP("jd", "J", "", "job description file")
	analyzeCmd.Flags().String("jd-text", "", "job description text")
	analyzeCmd.Flags().String("persona", "", "persona key (hrbp, candidate, headhunter or a configured one)")
	analyzeCmd.Flags().BoolP("stream", "s", false, "stream the report as it is generated")
	addCallFlags(analyzeCmd)
}

// addCallFlags registers the per-call engine options.
func addCallFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-cache", false, "do not read or write the cache")
	cmd.Flags().String("model", "", "model override")
	cmd.Flags().String("temperature", "", "temperature override within [0,1]")
	cmd.Flags().Bool("output-json", false, "print the result as json")
	cmd.Flags().StringToString("option", nil, "extra backend request field as key=value, e.g. thinking_budget=2048")
}

func callOptions(cmd *cobra.Command) (engine.Options, error) {
	noCache, _ := cmd.Flags().GetBool("no-cache")
	model, _ := cmd.Flags().GetString("model")
	raw, _ := cmd.Flags().GetString("temperature")

	opts := engine.Options{UseCache: !noCache, Model: model}
	if raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil || t < 0 || t > 1 {
			return opts, fmt.Errorf("invalid temperature %q: must be a number within [0,1]", raw)
		}
		opts.Temperature = &t
	}

	extra, _ := cmd.Flags().GetStringToString("option")
	if len(extra) > 0 {
		opts.Extra = make(map[string]any, len(extra))
		for k, v := range extra {
			// Scalars keep their YAML type so numbers reach the backend as numbers.
			var value any
			if err := yaml.Unmarshal([]byte(v), &value); err != nil || value == nil {
				value = v
			}
			opts.Extra[k] = value
		}
	}
	return opts, nil
}

// commandContext is cancelled on interrupt so streams and retries stop promptly.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func analyze(cmd *cobra.Command) {
	ctx, cancel := commandContext()
	defer cancel()

	rt := setup(ctx)
	defer rt.close()
	logger := rt.logger

	opts, err := callOptions(cmd)
	if err != nil {
		logger.Fatal("parsing flags", zap.Error(err))
	}

	resumePaths, _ := cmd.Flags().GetStringSlice("resume")
	jdPath, _ := cmd.Flags().GetString("jd")
	jdText, _ := cmd.Flags().GetString("jd-text")
	persona, _ := cmd.Flags().GetString("persona")
	stream, _ := cmd.Flags().GetBool("stream")
	asJSON, _ := cmd.Flags().GetBool("output-json")

	if len(resumePaths) == 0 {
		logger.Fatal("at least one --resume is required")
	}

	jd, err := readInput("job description", jdPath, jdText)
	if err != nil {
		logger.Fatal("reading input", zap.Error(err))
	}

	persona, err = choosePersona(persona, rt.engine.Personas())
	if err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}

	if len(resumePaths) > 1 {
		analyzeBatch(ctx, rt, resumePaths, jd, persona, opts.UseCache, asJSON)
		return
	}

	resume, err := readInput("resume", resumePaths[0], "")
	if err != nil {
		logger.Fatal("reading input", zap.Error(err))
	}

	req := engine.AnalyzeRequest{Resume: resume, JD: jd, Persona: persona, Options: opts}

	if stream {
		for chunk, err := range rt.engine.AnalyzeStream(ctx, req) {
			if err != nil {
				fmt.Println()
				logger.Fatal("streaming analysis", zap.Error(err))
			}
			fmt.Print(chunk)
		}
		fmt.Println()
		return
	}

	result, err := rt.engine.Analyze(ctx, req)
	if err != nil {
		logger.Fatal("analysis failed", zap.Error(err))
	}

	if asJSON {
		if err := printJSON(result); err != nil {
			logger.Fatal("printing result", zap.Error(err))
		}
		return
	}

	fmt.Println(result.Report)
	logger.Info("analysis completed",
		zap.Intp("score", result.Score),
		zap.String("model", result.Model),
		zap.Int("tokens_used", result.TokensUsed),
		zap.Duration("latency", result.Latency),
		zap.Bool("cached", result.Cached),
	)
}

func analyzeBatch(ctx context.Context, rt *runtime, paths []string, jd, persona string, useCache, asJSON bool) {
	resumes := make([]string, 0, len(paths))
	for _, path := range paths {
		resume, err := readInput("resume", path, "")
		if err != nil {
			rt.logger.Fatal("reading input", zap.Error(err))
		}
		resumes = append(resumes, resume)
	}

	results := rt.engine.BatchAnalyze(ctx, resumes, jd, persona, useCache)

	if asJSON {
		if err := printJSON(results); err != nil {
			rt.logger.Fatal("printing result", zap.Error(err))
		}
		return
	}

	rows := make([][]string, 0, len(results))
	for i, res := range results {
		score := "-"
		if res.Score != nil {
			score = strconv.Itoa(*res.Score)
		}
		status := "ok"
		if _, failed := res.Metadata["error"]; failed {
			status = "failed"
		}
		rows = append(rows, []string{paths[i], score, status, strconv.FormatBool(res.Cached)})
	}
	fmt.Println(renderTable([]string{"Resume", "Score", "Status", "Cached"}, rows, []columnAlignment{alignLeft, alignRight}))

	for i, res := range results {
		fmt.Printf("\n## %s\n\n%s\n", paths[i], res.Report)
	}
}

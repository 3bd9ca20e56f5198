package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-analyzer/internal/engine"
)

var (
	optimizeCmd = &cobra.Command{
		Use:   "optimize-jd",
		Short: "Rewrite a job description to attract better candidates",
		Run: func(cmd *cobra.Command, _ []string) {
			optimizeJD(cmd)
		},
	}

	extractCmd = &cobra.Command{
		Use:   "extract",
		Short: "Extract structured fields from a resume",
		Run: func(cmd *cobra.Command, _ []string) {
			extract(cmd)
		},
	}

	diagnoseCmd = &cobra.Command{
		Use:   "diagnose",
		Short: "Review a resume on its own and suggest improvements",
		Run: func(cmd *cobra.Command, _ []string) {
			diagnose(cmd)
		},
	}

	translateCmd = &cobra.Command{
		Use:   "translate",
		Short: "Translate a text",
		Run: func(cmd *cobra.Command, _ []string) {
			translate(cmd)
		},
	}

	rewriteCmd = &cobra.Command{
		Use:   "rewrite",
		Short: "Rewrite a resume bullet point in STAR form",
		Run: func(cmd *cobra.Command, _ []string) {
			rewrite(cmd)
		},
	}

	messageCmd = &cobra.Command{
		Use:   "message",
		Short: "Draft an interview invitation or a rejection email",
		Run: func(cmd *cobra.Command, _ []string) {
			message(cmd)
		},
	}

	embedCmd = &cobra.Command{
		Use:   "embed",
		Short: "Compute an embedding vector with the current provider",
		Run: func(cmd *cobra.Command, _ []string) {
			embed(cmd)
		},
	}
)

func init() {
	rootCmd.AddCommand(optimizeCmd, extractCmd, diagnoseCmd, translateCmd, rewriteCmd, messageCmd, embedCmd)

	optimizeCmd.Flags().StringP("jd", "J", "", "job description file")
	optimizeCmd.Flags().String("jd-text", "", "job description text")
	addCallFlags(optimizeCmd)

	extractCmd.Flags().StringP("resume", "r", "", "resume file, '-' for stdin")
	extractCmd.Flags().Bool("typed", false, "print only the known fields")
	addCallFlags(extractCmd)

	diagnoseCmd.Flags().StringP("resume", "r", "", "resume file, '-' for stdin")
	diagnoseCmd.Flags().String("persona", "", "persona key")
	addCallFlags(diagnoseCmd)

	translateCmd.Flags().StringP("file", "f", "", "file to translate, '-' for stdin")
	translateCmd.Flags().String("text", "", "text to translate")
	translateCmd.Flags().StringP("to", "t", "Chinese", "target language")

	rewriteCmd.Flags().StringP("bullet", "b", "", "the bullet point to rewrite")
	rewriteCmd.Flags().StringP("jd", "J", "", "job description file to tailor the bullet to")
	rewriteCmd.Flags().String("jd-text", "", "job description text")

	messageCmd.Flags().String("type", "", "message type: invite or reject")
	messageCmd.Flags().String("name", "", "candidate name")
	messageCmd.Flags().String("role", "", "position title")
	messageCmd.Flags().String("reason", "", "rejection reason")
	messageCmd.Flags().String("style", "Professional", "tone of a rejection")
	messageCmd.Flags().String("time", "", "interview time")
	messageCmd.Flags().String("interviewer", "", "interviewer name")
	messageCmd.Flags().String("tips", "", "preparation tips for the candidate")

	embedCmd.Flags().String("text", "", "text to embed")
	embedCmd.Flags().StringP("file", "f", "", "file to embed")
}

func printResult(logger *zap.Logger, result *engine.AnalysisResult, asJSON bool) {
	if asJSON {
		if err := printJSON(result); err != nil {
			logger.Fatal("printing result", zap.Error(err))
		}
		return
	}
	fmt.Println(result.Report)
	logger.Info("completed",
		zap.String("model", result.Model),
		zap.Int("tokens_used", result.TokensUsed),
		zap.Duration("latency", result.Latency),
		zap.Bool("cached", result.Cached),
	)
}

func optimizeJD(cmd *cobra.Command) {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	opts, err := callOptions(cmd)
	if err != nil {
		rt.logger.Fatal("parsing flags", zap.Error(err))
	}
	jdPath, _ := cmd.Flags().GetString("jd")
	jdText, _ := cmd.Flags().GetString("jd-text")
	asJSON, _ := cmd.Flags().GetBool("output-json")

	jd, err := readInput("job description", jdPath, jdText)
	if err != nil {
		rt.logger.Fatal("reading input", zap.Error(err))
	}

	result, err := rt.engine.OptimizeJD(ctx, jd, opts)
	if err != nil {
		rt.logger.Fatal("optimization failed", zap.Error(err))
	}
	printResult(rt.logger, result, asJSON)
}

func extract(cmd *cobra.Command) {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	opts, err := callOptions(cmd)
	if err != nil {
		rt.logger.Fatal("parsing flags", zap.Error(err))
	}
	path, _ := cmd.Flags().GetString("resume")
	typed, _ := cmd.Flags().GetBool("typed")

	resume, err := readInput("resume", path, "")
	if err != nil {
		rt.logger.Fatal("reading input", zap.Error(err))
	}

	payload, err := rt.engine.ExtractResumeFields(ctx, resume, opts)
	if err != nil {
		rt.logger.Fatal("extraction failed", zap.Error(err))
	}

	var out any = payload
	if typed {
		fields, err := engine.DecodeResumeFields(payload)
		if err != nil {
			rt.logger.Fatal("decoding fields", zap.Error(err))
		}
		out = fields
	}
	if err := printJSON(out); err != nil {
		rt.logger.Fatal("printing result", zap.Error(err))
	}
}

func diagnose(cmd *cobra.Command) {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	opts, err := callOptions(cmd)
	if err != nil {
		rt.logger.Fatal("parsing flags", zap.Error(err))
	}
	path, _ := cmd.Flags().GetString("resume")
	persona, _ := cmd.Flags().GetString("persona")
	asJSON, _ := cmd.Flags().GetBool("output-json")

	resume, err := readInput("resume", path, "")
	if err != nil {
		rt.logger.Fatal("reading input", zap.Error(err))
	}

	result, err := rt.engine.DiagnoseResume(ctx, resume, persona, opts)
	if err != nil {
		rt.logger.Fatal("diagnosis failed", zap.Error(err))
	}
	printResult(rt.logger, result, asJSON)
}

func translate(cmd *cobra.Command) {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	path, _ := cmd.Flags().GetString("file")
	inline, _ := cmd.Flags().GetString("text")
	target, _ := cmd.Flags().GetString("to")

	text, err := readInput("text", path, inline)
	if err != nil {
		rt.logger.Fatal("reading input", zap.Error(err))
	}

	translated, err := rt.engine.Translate(ctx, text, target)
	if err != nil {
		rt.logger.Fatal("translation failed", zap.Error(err))
	}
	fmt.Println(translated)
}

func rewrite(cmd *cobra.Command) {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	bullet, _ := cmd.Flags().GetString("bullet")
	jdPath, _ := cmd.Flags().GetString("jd")
	jdText, _ := cmd.Flags().GetString("jd-text")

	if bullet == "" {
		rt.logger.Fatal("--bullet is required")
	}

	jd := ""
	if jdPath != "" || jdText != "" {
		var err error
		if jd, err = readInput("job description", jdPath, jdText); err != nil {
			rt.logger.Fatal("reading input", zap.Error(err))
		}
	}

	rewritten, err := rt.engine.RewriteBullet(ctx, bullet, jd)
	if err != nil {
		rt.logger.Fatal("rewrite failed", zap.Error(err))
	}
	fmt.Println(rewritten)
}

func message(cmd *cobra.Command) {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	flag := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}

	kind, err := chooseMessageKind(flag("type"))
	if err != nil {
		rt.logger.Fatal("exiting", zap.Error(err))
	}

	text, err := rt.engine.GenerateMessage(ctx, engine.MessageRequest{
		Kind:      kind,
		Candidate: engine.Candidate{Name: flag("name"), Reason: flag("reason")},
		Job:       engine.Job{Role: flag("role")},
		Options: engine.MessageOptions{
			Style:       flag("style"),
			Time:        flag("time"),
			Interviewer: flag("interviewer"),
			Tips:        flag("tips"),
		},
	})
	if err != nil {
		rt.logger.Fatal("message generation failed", zap.Error(err))
	}
	fmt.Println(text)
}

func embed(cmd *cobra.Command) {
	ctx, cancel := commandContext()
	defer cancel()
	rt := setup(ctx)
	defer rt.close()

	path, _ := cmd.Flags().GetString("file")
	inline, _ := cmd.Flags().GetString("text")

	text, err := readInput("text", path, inline)
	if err != nil {
		rt.logger.Fatal("reading input", zap.Error(err))
	}

	vector, err := rt.engine.Embed(ctx, text)
	if err != nil {
		rt.logger.Fatal("embedding failed", zap.Error(err))
	}
	if err := printJSON(map[string]any{"dimensions": len(vector), "embedding": vector}); err != nil {
		rt.logger.Fatal("printing result", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ent0n29/mockinterview/internal/app"
	"github.com/ent0n29/mockinterview/internal/apperr"
	"github.com/ent0n29/mockinterview/internal/logger"
	"github.com/ent0n29/mockinterview/internal/observability"
	"github.com/ent0n29/mockinterview/internal/reliability"
	"github.com/ent0n29/mockinterview/internal/session"
)

const (
	endCommand      = "/end"
	endAttempts     = 3
	practiceLogFile = "stderr"
)

var (
	endBackoffBase = 500 * time.Millisecond
	endBackoffCap  = 5 * time.Second
)

// Seniority options offered when --level is not given.
var practiceLevels = []string{"Intern", "Junior", "Mid", "Senior", "Lead"}

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run a mock interview in the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		role, _ := cmd.Flags().GetString("role")
		level, _ := cmd.Flags().GetString("level")
		return practice(cmd.Context(), cmd.OutOrStdout(), role, level)
	},
}

func init() {
	rootCmd.AddCommand(practiceCmd)

	practiceCmd.Flags().StringP("role", "r", "", "target role, e.g. \"Backend Engineer\"")
	practiceCmd.Flags().StringP("level", "l", "", "seniority level, e.g. Mid")
}

// interviewer is the part of the service the terminal loop drives.
type interviewer interface {
	SubmitAnswer(ctx context.Context, sessionID, candidateText string) (string, error)
	End(ctx context.Context, sessionID string) (session.Report, error)
}

func practice(ctx context.Context, out io.Writer, role, level string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	// Practice runs are throwaway.
	cfg.DatabaseURL = ""

	log, err := logger.New(cfg.LogJSON, cfg.LogDebug, practiceLogFile)
	if err != nil {
		return fmt.Errorf("creating a logger: %w", err)
	}
	defer log.Sync()

	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), cfg.MetricsNamespace)
	built, err := app.Build(ctx, cfg, log, metrics)
	if err != nil {
		return err
	}
	defer built.Cleanup()

	if strings.TrimSpace(role) == "" {
		role, err = (&promptui.Prompt{Label: "Target role", Validate: notBlank}).Run()
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(level) == "" {
		levels := practiceLevels
		if len(cfg.AllowedLevels) > 0 {
			levels = cfg.AllowedLevels
		}
		_, level, err = (&promptui.Select{Label: "Seniority level", Items: levels}).Run()
		if err != nil {
			return err
		}
	}
	if !cfg.LevelAllowed(level) {
		return fmt.Errorf("level must be one of: %s", strings.Join(cfg.AllowedLevels, ", "))
	}

	started, err := built.Interviews.Start(ctx, role, level)
	if err != nil {
		return err
	}
	log.Debug("practice session started", zap.String("session_id", started.SessionID), zap.String("backend", built.Backend))
	fmt.Fprintf(out, "\nInterviewer: %s\n\n", started.Question)

	answerPrompt := &promptui.Prompt{Label: "Your answer (" + endCommand + " to finish)", Validate: notBlank}
	return runPractice(ctx, out, built.Interviews, started.SessionID, answerPrompt.Run)
}

// runPractice loops until the candidate types /end, then prints the report.
func runPractice(ctx context.Context, out io.Writer, svc interviewer, sessionID string, ask func() (string, error)) error {
	for {
		answer, err := ask()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				fmt.Fprintln(out, "Interview abandoned.")
				return nil
			}
			return err
		}
		answer = strings.TrimSpace(answer)
		if strings.EqualFold(answer, endCommand) {
			break
		}

		question, err := svc.SubmitAnswer(ctx, sessionID, answer)
		if err != nil {
			if reliability.IsRetryable(err) {
				fmt.Fprintf(out, "The interviewer is unavailable (%s). Try sending your answer again.\n", apperr.Message(err))
				continue
			}
			return err
		}
		fmt.Fprintf(out, "\nInterviewer: %s\n\n", question)
	}

	fmt.Fprintln(out, "Evaluating your interview...")
	report, err := endWithRetry(ctx, svc, sessionID)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}

// endWithRetry retries End on transient failures. Safe because a failed End
// leaves the session InProgress.
func endWithRetry(ctx context.Context, svc interviewer, sessionID string) (session.Report, error) {
	var report session.Report
	err := withRetry(ctx, "end", func() error {
		var err error
		report, err = svc.End(ctx, sessionID)
		return err
	})
	if err != nil {
		return session.Report{}, err
	}
	return report, nil
}

// withRetry runs call up to endAttempts times with exponential backoff.
// Operations that are not idempotent run exactly once.
func withRetry(ctx context.Context, op string, call func() error) error {
	attempts := endAttempts
	if !reliability.IsIdempotentOperation(op) {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !transient(err) || attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reliability.ExponentialBackoff(attempt, endBackoffBase, endBackoffCap)):
		}
	}
	return lastErr
}

// transient also treats a malformed evaluation as worth another try.
func transient(err error) bool {
	return reliability.IsRetryable(err) || errors.Is(err, apperr.MalformedResponse)
}

func printReport(out io.Writer, r session.Report) {
	fmt.Fprintln(out, "\n=== Interview report ===")
	fmt.Fprintf(out, "Technical depth: %d/10\n", r.TechnicalDepth)
	fmt.Fprintf(out, "Clarity:         %d/10\n", r.Clarity)
	fmt.Fprintf(out, "Confidence:      %d/10\n", r.Confidence)
	fmt.Fprintf(out, "Overall:         %.1f/10\n", r.OverallScore())
	if r.OverallFeedback != "" {
		fmt.Fprintf(out, "\n%s\n", r.OverallFeedback)
	}
	printList(out, "Strengths", r.Strengths)
	printList(out, "Weaknesses", r.Weaknesses)
	printList(out, "Suggested improvements", r.SuggestedImprovements)
	if len(r.ModelAnswers) > 0 {
		fmt.Fprintln(out, "\nModel answers:")
		for i, ma := range r.ModelAnswers {
			fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, ma.Question, ma.SuggestedAnswer)
		}
	}
}

func printList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "  - %s\n", item)
	}
}

func notBlank(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("value cannot be empty")
	}
	return nil
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voxprep/voxprep-core/internal/config"
	"github.com/voxprep/voxprep-core/internal/feedback"
	"github.com/voxprep/voxprep-core/internal/generate"
	"github.com/voxprep/voxprep-core/internal/session"
	"github.com/voxprep/voxprep-core/internal/telemetry"
)

// localProvisioner never provisions, which forces the bridge into its local
// text-only session. The terminal binary is that degraded mode on purpose.
type localProvisioner struct{}

func (localProvisioner) Provision(context.Context) (session.Session, error) {
	return session.Session{}, errors.New("terminal session runs locally")
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	generator, err := generate.FromConfig(cfg.Generate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build generation backend: %v\n", err)
		os.Exit(1)
	}

	bridge := session.NewBridge(cfg, session.Deps{
		Provisioner: localProvisioner{},
		Generator:   generator,
		Telemetry:   telemetry.NewAggregator(logger),
		Feedback:    feedback.NewClient(cfg.Feedback, logger),
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bridge.StartVoiceSession(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start session: %v\n", err)
		os.Exit(1)
	}
	defer bridge.StopVoiceSession(context.Background())

	fmt.Println("voxprep practice session (type your answers, ctrl-c to quit)")
	fmt.Println()
	printInterviewer(bridge.OpeningPrompt())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			continue
		}

		reply, err := bridge.SubmitText(ctx, answer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printInterviewer(reply.Text)
		if reply.QuestionNumber > 0 {
			fmt.Printf("  [question %d of %d]\n", reply.QuestionNumber, reply.MaxQuestions)
		}
		if reply.IsComplete {
			metrics := bridge.Metrics()
			fmt.Printf("\nSession complete: %d questions, %d fallbacks, %s elapsed.\n",
				metrics.QuestionsAsked, metrics.FallbackQuestions,
				metrics.SessionDuration.Round(time.Second))
			return
		}
	}
}

func printInterviewer(text string) {
	fmt.Printf("interviewer: %s\n", text)
}

// Command repcoach-cli runs a coaching session in the terminal. Each line
// typed is handled as if it had been spoken.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/config"
	"github.com/claude/repcoach/internal/journal"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/provider"
	"github.com/claude/repcoach/internal/provider/hevy"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/vault"
	"github.com/claude/repcoach/internal/voice"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	routineID := flag.String("routine", "", "routine id to start")
	routineFile := flag.String("file", "", "routine JSON file to start instead of fetching one")
	dryRun := flag.Bool("dry-run", false, "do not sync the workout to the tracker")
	user := flag.String("user", "", "credential scope (defaults to vault.scope)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !*dryRun || *routineFile == "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		d := config.Defaults()
		cfg = &d
		log.Warn("no usable config, using defaults", "error", err)
	}
	login := *user
	if login == "" {
		login = cfg.Vault.Scope
	}

	keys := vault.NewKeyring(cfg.Vault.Scope)
	registry := provider.NewRegistry(hevy.New(cfg.Provider.BaseURL, keys,
		hevy.WithHTTPClient(&http.Client{Timeout: cfg.Provider.Timeout}),
		hevy.WithLogger(log),
	))

	ctx := context.Background()
	out := &console{w: os.Stdout}

	// Without a routine, list what's available and stop.
	if *routineID == "" && *routineFile == "" {
		if err := listRoutines(ctx, registry, login, out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var confirming atomic.Bool
	opts := []session.Option{
		session.WithLogger(log),
		session.WithEndHandler(func(*session.Session) {
			confirming.Store(true)
			out.printf("End the workout now? (y/n) ")
		}),
	}
	if !*dryRun {
		jr, err := journal.Open(cfg.Journal.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: opening journal: %v\n", err)
			os.Exit(1)
		}
		defer jr.Close()
		opts = append(opts, session.WithRemote(registry), session.WithJournal(jr))
	}

	svc := session.NewService(coachConfig(cfg), registry, opts...)
	sess := svc.For(login)
	sess.Subscribe(coach.SinkFunc(func(role coach.Role, text string) {
		if role == coach.RoleAI {
			out.printf("coach> %s\n", text)
		}
	}))

	if *routineFile != "" {
		routine, err := readRoutine(*routineFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		_, err = sess.StartRoutine(ctx, routine)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else if _, err := sess.StartWorkout(ctx, *routineID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out.printf("(voice unavailable, type what you would say; \"help\" lists commands)\n")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if confirming.Swap(false) {
			if answer := strings.ToLower(line); answer == "y" || answer == "yes" {
				break
			}
			out.printf("coach> Okay, let's keep going.\n")
			continue
		}
		if err := sess.ProcessInput(line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		if !sess.Engine().Active() {
			break
		}
	}

	if sess.Engine().Active() {
		if _, err := sess.Complete(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if sum, ok := sess.Engine().Summary(); ok {
		out.printf("\n%s: %d exercises, %d sets, %d reps in %d min\n",
			sum.Title, sum.Exercises, sum.TotalSets, sum.TotalReps, sum.DurationMinutes)
	}
	if id := sess.RemoteID(); id != "" {
		out.printf("Saved as workout %s\n", id)
	}
}

// console serializes output from the input loop and timer callbacks. Coach
// text is printed the way it would be spoken.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, a := range args {
		if s, ok := a.(string); ok {
			args[i] = voice.CleanTextForSpeech(s)
		}
	}
	fmt.Fprintf(c.w, format, args...)
}

func listRoutines(ctx context.Context, registry *provider.Registry, login string, out *console) error {
	page, err := registry.ListRoutines(vault.WithScope(ctx, login), 1, 10)
	if err != nil {
		return fmt.Errorf("listing routines: %w", err)
	}
	if len(page.Routines) == 0 {
		out.printf("No routines found.\n")
		return nil
	}
	for _, r := range page.Routines {
		out.printf("%s  %s (%d exercises)\n", r.ID, r.Title, len(r.Exercises))
	}
	out.printf("\nStart one with -routine <id>.\n")
	return nil
}

func readRoutine(path string) (models.Routine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Routine{}, fmt.Errorf("reading routine: %w", err)
	}
	var r models.Routine
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Routine{}, fmt.Errorf("parsing routine: %w", err)
	}
	return r, nil
}

func coachConfig(cfg *config.Config) coach.Config {
	return coach.Config{
		AnnounceDelay:       cfg.Coach.AnnounceDelay,
		DefaultRestSeconds:  cfg.Coach.DefaultRestSeconds,
		ExerciseRestSeconds: cfg.Coach.ExerciseRestSeconds,
		FinishTimeout:       cfg.Coach.CompletionWait,
	}
}

package main

// #region imports
import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/medforce/intake-orchestrator/internal/config"
	"github.com/medforce/intake-orchestrator/internal/engine"
	"github.com/medforce/intake-orchestrator/internal/oracle"
	"github.com/medforce/intake-orchestrator/internal/profile"
	"github.com/medforce/intake-orchestrator/internal/publish"
	"github.com/medforce/intake-orchestrator/internal/session"
	"github.com/medforce/intake-orchestrator/internal/transcript"
)

// #endregion

// #region main

// replay feeds a recorded interview transcript through the full analysis
// loop, as if the speech were arriving live. Lines look like
// "PATIENT: it started hurting two weeks ago".
func main() {
	filePath := flag.String("file", "", "recorded transcript, one 'ROLE: text' line per turn")
	configPath := flag.String("config", envOr("INTAKE_CONFIG", ""), "path to YAML config")
	patientID := flag.String("patient", "", "patient id for profile lookup")
	interval := flag.Duration("interval", 2*time.Second, "delay between fed lines")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --file path/to/transcript.txt [--config cfg.yaml] [--interval 2s]")
		os.Exit(2)
	}

	lines, err := loadTranscript(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load transcript: %v\n", err)
		os.Exit(2)
	}
	if len(lines) == 0 {
		fmt.Fprintln(os.Stderr, "transcript is empty")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	store, err := session.NewStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(2)
	}
	defer store.Close()

	rec, err := store.CreateSession(*patientID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create session: %v\n", err)
		os.Exit(2)
	}
	log.Printf("[REPLAY] session %s, %d lines", rec.SessionID, len(lines))

	patientInfo, err := profile.NewDirLoader(cfg.ProfileDir).PatientInfo(*patientID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "profile: %v\n", err)
		os.Exit(2)
	}

	registry := oracle.DefaultRegistry(cfg.Model)
	if cfg.PromptDir != "" {
		if err := registry.LoadInstructions(cfg.PromptDir); err != nil {
			fmt.Fprintf(os.Stderr, "prompts: %v\n", err)
			os.Exit(2)
		}
	}
	for name, model := range cfg.ModelOverrides {
		registry.SetModel(oracle.Name(name), model)
	}

	feed := transcript.NewFeed()
	hub := publish.NewHub()
	defer hub.Close()

	eng := engine.New(engine.Config{
		GrowthThreshold: cfg.GrowthThreshold,
		Cooldown:        cfg.Cooldown,
		IdlePoll:        cfg.IdlePoll,
		StatusPath:      cfg.StatusPath,
	}, engine.Deps{
		Feed:    feed,
		Oracles: oracle.NewClient(openai.NewClient(), registry, cfg.OracleTimeout),
		Hub:     hub,
		Store:   store,
	}, rec.SessionID, patientInfo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for i, l := range lines {
			feed.AppendOrUpdate(l.role, l.text, true)
			log.Printf("[REPLAY] fed line %d/%d", i+1, len(lines))
			time.Sleep(*interval)
		}
		// Give the trigger a chance to absorb the tail, then stop.
		time.Sleep(cfg.Cooldown + cfg.IdlePoll)
		cancel()
	}()

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	log.Printf("[REPLAY] done, finished=%v", eng.Finished())
}

// #endregion main

// #region transcript-file

type line struct {
	role transcript.Role
	text string
}

func loadTranscript(path string) ([]line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []line
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		role, text, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("malformed line %q", raw)
		}
		lines = append(lines, line{
			role: transcript.Role(strings.ToUpper(strings.TrimSpace(role))),
			text: strings.TrimSpace(text),
		})
	}
	return lines, scanner.Err()
}

// #endregion

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers

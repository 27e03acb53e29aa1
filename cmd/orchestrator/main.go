package main

// #region imports
import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
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
func main() {
	configPath := flag.String("config", envOr("INTAKE_CONFIG", ""), "path to YAML config")
	patientID := flag.String("patient", "", "patient id for profile lookup")
	seedPath := flag.String("seed", "", "file with one intake question per line")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := session.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	rec, err := store.CreateSession(*patientID)
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	log.Printf("[MAIN] session %s (patient %q)", rec.SessionID, *patientID)

	patientInfo, err := profile.NewDirLoader(cfg.ProfileDir).PatientInfo(*patientID)
	if err != nil {
		log.Fatalf("profile: %v", err)
	}

	registry := oracle.DefaultRegistry(cfg.Model)
	if cfg.PromptDir != "" {
		if err := registry.LoadInstructions(cfg.PromptDir); err != nil {
			log.Fatalf("prompts: %v", err)
		}
	}
	for name, model := range cfg.ModelOverrides {
		registry.SetModel(oracle.Name(name), model)
	}
	oracles := oracle.NewClient(openai.NewClient(), registry, cfg.OracleTimeout)

	seed, err := readSeed(*seedPath)
	if err != nil {
		log.Fatalf("seed questions: %v", err)
	}

	feed := transcript.NewFeed()
	hub := publish.NewHub()
	defer hub.Close()

	engCfg := engine.Config{
		GrowthThreshold: cfg.GrowthThreshold,
		Cooldown:        cfg.Cooldown,
		IdlePoll:        cfg.IdlePoll,
		StatusPath:      cfg.StatusPath,
	}
	eng := engine.New(engCfg, engine.Deps{
		Feed:    feed,
		Oracles: oracles,
		Hub:     hub,
		Store:   store,
	}, rec.SessionID, patientInfo, seed)

	mux := http.NewServeMux()
	mux.Handle("/ws/ui", hub)
	mux.HandleFunc("/ws/transcribe", ingestHandler(feed))
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		log.Printf("[MAIN] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[MAIN] engine: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[MAIN] shutdown: %v", err)
	}
	log.Printf("[MAIN] session %s done", rec.SessionID)
}

// #endregion main

// #region ingest

// fragment is one recognized-speech frame from the transcriber.
type fragment struct {
	Role    string `json:"role"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

var ingestUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ingestHandler accepts the recognizer's WebSocket stream and writes each
// fragment into the feed.
func ingestHandler(feed *transcript.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ingestUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[INGEST] upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		log.Printf("[INGEST] transcriber connected")

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("[INGEST] transcriber gone: %v", err)
				return
			}
			var f fragment
			if err := json.Unmarshal(data, &f); err != nil {
				log.Printf("[INGEST] bad frame dropped: %v", err)
				continue
			}
			if strings.TrimSpace(f.Text) == "" {
				continue
			}
			feed.AppendOrUpdate(transcript.Role(strings.ToUpper(f.Role)), f.Text, f.IsFinal)
		}
	}
}

// #endregion

// #region helpers

func readSeed(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var questions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			questions = append(questions, line)
		}
	}
	return questions, scanner.Err()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers

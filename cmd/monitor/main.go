package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/assembly.monitor/internal/andon"
	"github.com/banshee-data/assembly.monitor/internal/api"
	"github.com/banshee-data/assembly.monitor/internal/config"
	"github.com/banshee-data/assembly.monitor/internal/db"
	"github.com/banshee-data/assembly.monitor/internal/monitoring"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
	"github.com/banshee-data/assembly.monitor/internal/timeutil"
	"github.com/banshee-data/assembly.monitor/internal/version"
)

var (
	listen        = flag.String("listen", ":8090", "HTTP listen address")
	tuningFile    = flag.String("config", "", "Tuning config JSON (default: config/tuning.defaults.json)")
	planFile      = flag.String("plan", "config/plan.example.toml", "Assembly plan TOML")
	recordingFile = flag.String("recording", "", "Detection recording (.jsonl) used as frame source and detector")
	loop          = flag.Bool("loop", false, "Restart the recording when it ends")
	dbFile        = flag.String("db", "assembly_monitor.db", "Path to the SQLite database file (empty disables persistence)")
	skipStates    = flag.Bool("db-skip-state-changes", true, "Do not persist per-frame state_changed events")
	andonPort     = flag.String("andon-port", "", "Serial device of the stack light (empty disables it)")
	andonBaud     = flag.Int("andon-baud", 9600, "Stack light baud rate")
	andonBuzz     = flag.Duration("andon-buzz", 500*time.Millisecond, "Buzzer pulse on sequence errors (0 disables)")
	debugLog      = flag.Bool("debug", false, "Enable the pipeline diag stream on stderr")
	traceLog      = flag.Bool("trace", false, "Enable the per-frame pipeline trace stream on stderr")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("monitor"))
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *recordingFile == "" {
		log.Fatal("A detection recording is required (-recording)")
	}

	monitoring.SetLogger(log.Printf)
	var diag, trace io.Writer
	if *debugLog {
		diag = os.Stderr
	}
	if *traceLog {
		trace = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diag, trace)

	tuning := config.MustLoadDefaultConfig()
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}
	cfg := pipeline.ConfigFromTuning(tuning)

	plan, err := l6assembly.LoadPlan(*planFile)
	if err != nil {
		log.Fatalf("failed to load plan: %v", err)
	}

	rec, err := l1detect.LoadRecording(*recordingFile)
	if err != nil {
		log.Fatalf("failed to load recording: %v", err)
	}
	log.Printf("loaded %d recorded frames from %s", rec.Len(), *recordingFile)

	dispatcher := pipeline.NewDispatcher(cfg.EventBufferSize)

	var store *db.DB
	if *dbFile != "" {
		store, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		dispatcher.Subscribe("db", db.NewRecorder(store, *skipStates))
	}

	if *andonPort != "" {
		light, err := andon.Open(*andonPort, andon.PortOptions{BaudRate: *andonBaud}, *andonBuzz)
		if err != nil {
			log.Fatalf("failed to open stack light: %v", err)
		}
		defer light.Close()
		dispatcher.Subscribe("andon", light)
	}

	clock := timeutil.RealClock{}
	runner := pipeline.NewRunner(cfg, plan, clock, l1detect.NewSliceSource(rec.Frames(), *loop), rec, dispatcher)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		if err := runner.Run(ctx); err != nil {
			log.Printf("pipeline stopped: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	if store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			persistStatus(ctx, store, runner, cfg.StatusInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(api.NewServer(runner, store, dispatcher).ServeMux()),
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("serving on %s", *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	dispatcher.Close()

	snap := runner.Snapshot()
	log.Printf("session %s: %d completed, %d errors, %d events dropped",
		snap.SessionID, snap.Assembly.Completed, snap.Assembly.Errors, dispatcher.Dropped())
}

// persistStatus writes the running session's status to the database every
// interval, mirroring the in-memory history ring.
func persistStatus(ctx context.Context, store *db.DB, runner *pipeline.Runner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := runner.Snapshot()
			if err := store.RecordStatus(snap.SessionID, snap.Sample()); err != nil {
				log.Printf("failed to record status: %v", err)
			}
		}
	}
}

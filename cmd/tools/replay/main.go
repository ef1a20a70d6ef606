// Command replay runs a recorded detection session through the recognition
// pipeline offline and prints what the monitor would have reported.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/assembly.monitor/internal/config"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/recognition/monitor"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
	"github.com/banshee-data/assembly.monitor/internal/version"
)

var (
	recordingFile = flag.String("recording", "", "Detection recording (.jsonl) to replay")
	planFile      = flag.String("plan", "config/plan.example.toml", "Assembly plan TOML")
	tuningFile    = flag.String("config", "", "Tuning config JSON (default: config/tuning.defaults.json)")
	every         = flag.Int("every", 0, "Treat every Nth result as fresh inference (0 uses the config value)")
	plotDir       = flag.String("plots", "", "Write raw vs filtered wrist plots into this directory")
	eventsOut     = flag.String("events", "", "Write every pipeline event as JSON lines to this file")
	trace         = flag.Bool("trace", false, "Print the pipeline diag stream to stderr")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("replay"))
		return
	}
	if *recordingFile == "" {
		log.Fatal("-recording is required")
	}

	var diag io.Writer
	if *trace {
		diag = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diag, nil)

	tuning := config.MustLoadDefaultConfig()
	if *tuningFile != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*tuningFile); err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}
	cfg := pipeline.ConfigFromTuning(tuning)
	if *every > 0 {
		cfg.InferenceEveryNFrames = *every
	}

	plan, err := l6assembly.LoadPlan(*planFile)
	if err != nil {
		log.Fatalf("failed to load plan: %v", err)
	}
	rec, err := l1detect.LoadRecording(*recordingFile)
	if err != nil {
		log.Fatalf("failed to load recording: %v", err)
	}

	var plotter *monitor.WristPlotter
	if *plotDir != "" {
		if plotter, err = monitor.NewWristPlotter(*plotDir); err != nil {
			log.Fatalf("failed to prepare plots: %v", err)
		}
	}

	res := replay(cfg, plan, rec, plotter)

	if *eventsOut != "" {
		if err := writeEvents(*eventsOut, res.Events); err != nil {
			log.Fatalf("failed to write events: %v", err)
		}
	}
	if plotter != nil {
		n, err := plotter.GeneratePlots()
		if err != nil {
			log.Fatalf("failed to generate plots: %v", err)
		}
		log.Printf("wrote %d plots to %s", n, *plotDir)
	}

	printReport(os.Stdout, res)
}

func writeEvents(path string, events []pipeline.Event) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func printReport(w io.Writer, res replayResult) {
	a := res.Final.Assembly
	fmt.Fprintf(w, "frames: %d  events: %d  completed: %d  errors: %d (pending %d)\n",
		res.Frames, len(res.Events), a.Completed, a.Errors, a.PendingErrors)
	if a.Complete {
		fmt.Fprintln(w, "plan: complete")
	} else {
		fmt.Fprintf(w, "plan: step %d, expecting %s x%d\n", a.StepIndex+1, a.Expected, a.Remaining)
	}

	var rows [][]string
	for _, s := range summarize(res.Events) {
		avg := "-"
		if s.AvgAction > 0 {
			avg = s.AvgAction.Round(time.Millisecond).String()
		}
		rows = append(rows, []string{s.Part, strconv.Itoa(s.Picks), strconv.Itoa(s.Early), strconv.Itoa(s.Mismatch), avg})
	}
	fmt.Fprintln(w, renderTable("Picks",
		[]string{"Part", "Picks", "Early", "Mismatches", "Avg action"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	))

	if len(res.Final.Errors) > 0 {
		rows = rows[:0]
		for _, e := range res.Final.Errors {
			rows = append(rows, []string{
				strconv.FormatInt(e.ID, 10),
				e.At.Format("15:04:05.000"),
				e.Expected,
				e.Actual,
				string(e.Status),
			})
		}
		fmt.Fprintln(w, renderTable("Sequence errors",
			[]string{"ID", "At", "Expected", "Actual", "Status"},
			rows,
			[]columnAlignment{alignRight},
		))
	}
}

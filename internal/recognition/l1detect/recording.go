package l1detect

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Recording is a captured session of detector output, one DetectionResult
// per JSON line. It stands in for the live detector in replays and in the
// monitor's file source: Frames yields the frame stream and Detect returns
// the recorded result for a frame.
type Recording struct {
	results []DetectionResult
	bySeq   map[uint64]int
}

// LoadRecording reads a .jsonl recording from disk.
func LoadRecording(path string) (*Recording, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".jsonl" {
		return nil, fmt.Errorf("recording must have .jsonl extension, got %q", ext)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()
	return ReadRecording(f)
}

// ReadRecording parses a recording. Blank lines and lines starting with '#'
// are skipped. Results without a sequence number are numbered by position.
func ReadRecording(r io.Reader) (*Recording, error) {
	rec := &Recording{bySeq: make(map[uint64]int)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var res DetectionResult
		if err := json.Unmarshal([]byte(text), &res); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if res.Seq == 0 {
			res.Seq = uint64(len(rec.results) + 1)
		}
		if _, dup := rec.bySeq[res.Seq]; dup {
			return nil, fmt.Errorf("line %d: duplicate frame seq %d", line, res.Seq)
		}
		rec.bySeq[res.Seq] = len(rec.results)
		rec.results = append(rec.results, res)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return rec, nil
}

// Len returns the number of recorded frames.
func (r *Recording) Len() int { return len(r.results) }

// Results returns the recorded results in file order.
func (r *Recording) Results() []DetectionResult { return r.results }

// Frames returns the recorded frame stream, without pixel data.
func (r *Recording) Frames() []Frame {
	frames := make([]Frame, len(r.results))
	for i, res := range r.results {
		frames[i] = Frame{
			Seq:        res.Seq,
			CapturedAt: res.CapturedAt,
			Width:      res.Width,
			Height:     res.Height,
		}
	}
	return frames
}

// Detect returns the recorded result for frame.Seq. Frames missing from the
// recording detect nothing.
func (r *Recording) Detect(ctx context.Context, frame Frame) (*DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i, ok := r.bySeq[frame.Seq]
	if !ok {
		return &DetectionResult{Seq: frame.Seq, CapturedAt: frame.CapturedAt, Width: frame.Width, Height: frame.Height}, nil
	}
	res := r.results[i]
	return &res, nil
}

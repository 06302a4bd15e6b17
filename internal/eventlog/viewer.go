package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogFile represents an event log file on disk.
type LogFile struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	NumEvents int
}

// ListLogs finds .jsonl event log files in dir, newest first.
func ListLogs(dir string) ([]LogFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading event log directory: %w", err)
	}

	var files []LogFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), "-events.jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		n, _ := countLines(path) //nolint:errcheck
		files = append(files, LogFile{
			Path:      path,
			Name:      e.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			NumEvents: n,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// ReadEvents parses all events from an event log file.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	// Increase buffer for large lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	return events, nil
}

// RenderTimeline writes a human-readable submission timeline to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " SUBMISSION TIMELINE")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		elapsed := ev.Timestamp.Sub(start)
		ts := formatDuration(elapsed)

		switch ev.Type {
		case EventSessionStart:
			id, _ := ev.Data["session_id"].(string)          //nolint:errcheck
			part, _ := ev.Data["participant_id"].(string)    //nolint:errcheck
			steps := jsonNumber(ev.Data["step_count"])
			fmt.Fprintf(w, "[%s] 🚀 Session %s started  participant=%s  steps=%d\n", ts, id, part, steps)

		case EventSessionResumed:
			next := jsonNumber(ev.Data["next_step"])
			recorded := jsonNumber(ev.Data["recorded"])
			total := jsonFloat(ev.Data["running_total"])
			fmt.Fprintf(w, "[%s] ⏩ Resumed at step %d  recorded=%d  total=%.2f\n", ts, next, recorded, total)

		case EventStepSubmitted:
			idx := jsonNumber(ev.Data["step_index"])
			raw := jsonFloat(ev.Data["raw_score"])
			contrib := jsonFloat(ev.Data["contribution"])
			fmt.Fprintf(w, "[%s] ▶  Step %d submitted  raw=%.1f  contribution=%.2f\n", ts, idx, raw, contrib)

		case EventStepReplayed:
			idx := jsonNumber(ev.Data["step_index"])
			raw := jsonFloat(ev.Data["raw_score"])
			contrib := jsonFloat(ev.Data["contribution"])
			fmt.Fprintf(w, "[%s] ↻  Step %d replayed  raw=%.1f  contribution=%.2f\n", ts, idx, raw, contrib)

		case EventDeliveryFailed:
			idx := jsonNumber(ev.Data["step_index"])
			attempts := jsonNumber(ev.Data["attempts"])
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ✗  Step %d delivery failed after %d attempts: %s\n", ts, idx, attempts, msg)

		case EventFinalSubmit:
			total := jsonFloat(ev.Data["running_total"])
			fmt.Fprintf(w, "[%s] 📨 Final submit  total=%.2f\n", ts, total)

		case EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Error: %s\n", ts, msg)

		case EventSessionComplete:
			submitted := jsonNumber(ev.Data["submitted"])
			total := jsonFloat(ev.Data["running_total"])
			fmt.Fprintf(w, "[%s] 🏁 Session complete  steps=%d  total=%.2f\n", ts, submitted, total)

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts a number from a JSON-decoded interface{} (float64 or json.Number).
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}

func jsonFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64() //nolint:errcheck
		return f
	}
	return 0
}

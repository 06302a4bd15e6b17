// Package archive exports submitted sessions as zstd-compressed NDJSON
// files. The archive unit is the same as the recovery unit: the session row
// followed by its step records in index order, one JSON document per line.
package archive

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/tallyd/tally/internal/models"
)

// ErrNotSubmitted is returned when a session that is not in the submitted
// state is handed to Export.
var ErrNotSubmitted = errors.New("only submitted sessions can be archived")

// Manifest describes one exported archive. It is written alongside the
// archive file as <session-id>.manifest.json.
type Manifest struct {
	SessionID     string     `json:"session_id"`
	ParticipantID string     `json:"participant_id"`
	Records       int        `json:"records"`
	RunningTotal  float64    `json:"running_total"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	ArchivedAt    time.Time  `json:"archived_at"`
	File          string     `json:"file"`
	Digest        string     `json:"digest"`
	SizeBytes     int64      `json:"size_bytes"`
}

// Writer exports sessions into a directory.
type Writer struct {
	dir string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Export writes prog as a compressed NDJSON archive and a manifest sidecar.
// The digest covers the compressed bytes, so a copied archive can be
// verified without decompressing it.
func (w *Writer) Export(prog models.Progress) (Manifest, error) {
	if prog.Session.Status != models.SessionSubmitted {
		return Manifest{}, fmt.Errorf("session %s: %w", prog.Session.ID, ErrNotSubmitted)
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return Manifest{}, fmt.Errorf("creating archive directory: %w", err)
	}

	name := prog.Session.ID + ".ndjson.zst"
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("creating archive file: %w", err)
	}

	hash := sha256.New()
	zw, err := zstd.NewWriter(io.MultiWriter(f, hash))
	if err != nil {
		f.Close() //nolint:errcheck
		return Manifest{}, fmt.Errorf("creating zstd writer: %w", err)
	}

	if err := writeLines(zw, prog); err != nil {
		zw.Close() //nolint:errcheck
		f.Close()  //nolint:errcheck
		return Manifest{}, err
	}
	if err := zw.Close(); err != nil {
		f.Close() //nolint:errcheck
		return Manifest{}, fmt.Errorf("flushing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return Manifest{}, fmt.Errorf("closing archive file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("stat archive file: %w", err)
	}

	manifest := Manifest{
		SessionID:     prog.Session.ID,
		ParticipantID: prog.Session.ParticipantID,
		Records:       len(prog.Records),
		RunningTotal:  prog.Session.RunningTotal,
		SubmittedAt:   prog.Session.SubmittedAt,
		ArchivedAt:    time.Now().UTC(),
		File:          name,
		Digest:        hex.EncodeToString(hash.Sum(nil)),
		SizeBytes:     info.Size(),
	}
	if err := w.writeManifest(manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func writeLines(zw io.Writer, prog models.Progress) error {
	records := make([]models.StepRecord, len(prog.Records))
	copy(records, prog.Records)
	sort.Slice(records, func(i, j int) bool { return records[i].StepIndex < records[j].StepIndex })

	enc := json.NewEncoder(zw)
	if err := enc.Encode(prog.Session); err != nil {
		return fmt.Errorf("encoding session line: %w", err)
	}
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding record line for step %d: %w", rec.StepIndex, err)
		}
	}
	return nil
}

func (w *Writer) writeManifest(m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	path := filepath.Join(w.dir, m.SessionID+".manifest.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Read decompresses an archive file back into the session and its records.
func Read(path string) (models.Progress, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Progress{}, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close() //nolint:errcheck

	zr, err := zstd.NewReader(f)
	if err != nil {
		return models.Progress{}, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return models.Progress{}, fmt.Errorf("reading archive: %w", err)
		}
		return models.Progress{}, errors.New("archive is empty")
	}

	var prog models.Progress
	if err := json.Unmarshal(scanner.Bytes(), &prog.Session); err != nil {
		return models.Progress{}, fmt.Errorf("parsing session line: %w", err)
	}
	for scanner.Scan() {
		var rec models.StepRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return models.Progress{}, fmt.Errorf("parsing record line: %w", err)
		}
		prog.Records = append(prog.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return models.Progress{}, fmt.Errorf("reading archive: %w", err)
	}
	return prog, nil
}

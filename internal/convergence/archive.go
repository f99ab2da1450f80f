package convergence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// ArchivedRound is one line of a round archive.
type ArchivedRound struct {
	Document  string `json:"document"`
	Technique string `json:"technique"`
	Safety    bool   `json:"safety"`
	Round     int    `json:"round"`
	Hash      string `json:"content_hash"`
	Text      string `json:"text"`
}

// ArchivePath returns the archive file for a results timestamp.
func ArchivePath(dir, ts string) string {
	return filepath.Join(dir, "convergence_rounds_"+ts+".jsonl.zst")
}

// ArchiveRounds writes the text of every round in res to path as
// zstd-compressed JSON lines. Trajectories loaded from disk carry no
// round text and are skipped.
func ArchiveRounds(path string, res *Results) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}
	dest, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer dest.Close()

	encoder, err := zstd.NewWriter(dest)
	if err != nil {
		return 0, fmt.Errorf("create zstd encoder: %w", err)
	}

	enc := json.NewEncoder(encoder)
	written := 0
	for _, t := range res.Tests {
		for i, text := range t.outputs {
			line := ArchivedRound{
				Document:  t.Document,
				Technique: t.Technique,
				Safety:    t.SafetyEnabled,
				Round:     i,
				Text:      text,
			}
			if i < len(t.Rounds) {
				line.Hash = t.Rounds[i].ContentHash
			}
			if err := enc.Encode(line); err != nil {
				encoder.Close()
				return written, fmt.Errorf("compress: %w", err)
			}
			written++
		}
	}

	if err := encoder.Close(); err != nil {
		return written, fmt.Errorf("finalize compression: %w", err)
	}
	return written, dest.Close()
}

// ReadArchive decodes an archive written by ArchiveRounds.
func ReadArchive(path string) ([]ArchivedRound, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	decoder, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	return decodeRounds(decoder)
}

func decodeRounds(r io.Reader) ([]ArchivedRound, error) {
	var out []ArchivedRound
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		var line ArchivedRound
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("decode round %d: %w", len(out), err)
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

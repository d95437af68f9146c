package repository

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/okian/dipscan/internal/domain/classify"
	"github.com/okian/dipscan/internal/domain/model"
)

// SaveModel writes a model artifact atomically.
func SaveModel(path string, a *classify.Artifact) error {
	data, err := a.Encode()
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// LoadModel reads a model artifact. A missing file yields model.ErrModelNotTrained.
func LoadModel(path string) (*classify.Artifact, error) {
	data, err := os.ReadFile(path) //nolint:gosec // paths come from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.ErrModelNotTrained, path)
		}
		return nil, err
	}
	a, err := classify.DecodeArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// SaveJSON writes v as indented JSON atomically.
func SaveJSON(path string, v any) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// ReadTargets reads one target identifier per line. Blank lines and lines
// starting with '#' are skipped, and duplicates keep their first position.
func ReadTargets(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // paths come from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.ErrMissingInput, path)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var targets []string
	seen := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		targets = append(targets, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return targets, nil
}

// FileStem maps a target identifier to a file name stem, e.g. "TIC 1" -> "TIC_1".
func FileStem(targetID string) string {
	return strings.ReplaceAll(strings.TrimSpace(targetID), " ", "_")
}

package render

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/log"
)

// ArtExtensions are the art file types a directory scan picks up.
var ArtExtensions = []string{".png", ".jpg", ".jpeg", ".tif", ".jpf", ".webp"}

// Builder turns art files into jobs.
type Builder struct {
	OutputDir string

	// NewID generates job IDs. Defaults to random UUIDs.
	NewID func() string
}

func (b Builder) id() string {
	if b.NewID != nil {
		return b.NewID()
	}
	return uuid.NewString()
}

// ForTarget builds one job for the art file at path, optionally forcing a
// template.
func (b Builder) ForTarget(path, templateID string) (Job, error) {
	art, err := card.ParseArtFilename(path)
	if err != nil {
		return Job{}, err
	}
	return NewJob(b.id(), art, templateID, b.OutputDir), nil
}

// ForDir builds a job for every art file directly inside dir, sorted by
// file name. Files whose names start with "!" are skipped. Each job uses
// the default template for its card.
func (b Builder) ForDir(dir string) ([]Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading art directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "!") || !IsArtFile(name) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)

	jobs := make([]Job, 0, len(names))
	for _, name := range names {
		job, err := b.ForTarget(filepath.Join(dir, name), "")
		if err != nil {
			log.Warn(log.CatRender, "Skipping art file", "file", name, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// IsArtFile reports whether name has a supported art extension.
func IsArtFile(name string) bool {
	return slices.Contains(ArtExtensions, strings.ToLower(filepath.Ext(name)))
}

package loader

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/loomworks/loom/internal/core"
)

// loadSeeds discovers seed CSV files. Each seed is a leaf node whose
// columns follow the file's header row; a schema.yaml in the seeds
// directory may add descriptions and tests under a "seeds" list.
func (l *Loader) loadSeeds(project *Project, seen map[string]string, logger *slog.Logger) error {
	if l.SeedsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(l.SeedsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read seeds directory: %w", err)
	}

	props, err := loadProperties(l.SeedsDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".csv")
		path := filepath.Join(l.SeedsDir, entry.Name())

		if prev, dup := seen[name]; dup {
			return &core.ConfigError{
				Node:    name,
				File:    path,
				Message: fmt.Sprintf("seed name collides with %s", prev),
			}
		}

		header, err := readCSVHeader(path)
		if err != nil {
			return &core.ConfigError{Node: name, File: path, Message: err.Error()}
		}

		seed := &core.Model{
			Name:         name,
			Type:         core.NodeTypeSeed,
			FilePath:     path,
			Materialized: core.MaterializationSeed,
			Schema:       l.Defaults.Schema,
		}
		if props.Defaults.Schema != "" {
			seed.Schema = props.Defaults.Schema
		}
		for _, col := range header {
			seed.Columns = append(seed.Columns, core.Column{Name: col})
		}
		if spec := findSpec(props.Seeds, name); spec != nil {
			applySpec(seed, spec)
			seed.Materialized = core.MaterializationSeed
		}

		seen[name] = path
		project.Models = append(project.Models, seed)
		logger.Debug("seed loaded", "seed", name, "columns", len(header))
	}
	return nil
}

// readCSVHeader returns the header row of a seed file.
func readCSVHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %v", err)
	}
	defer func() { _ = f.Close() }()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("seed file has no header row: %v", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return header, nil
}

// ReadSeedRows reads a seed file's full contents: the header and every
// data row. Used by the materializer to generate the bulk load.
func ReadSeedRows(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("seed file is empty")
	}
	header = records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return header, records[1:], nil
}

// Package reindex implements the embedding admission queue: coalescing,
// per-tenant throttling, blocklisting, drift discovery, and the worker that
// drains queued jobs against the embedder.
package reindex

import (
	"fmt"
	"os"

	"github.com/pressbridge/pressbridge/internal/models"
	"gopkg.in/yaml.v3"
)

// Blocklist suppresses reindex enqueues by tenant or source type. Blocked
// items are accounted as skipped, never errored.
type Blocklist struct {
	tenants     map[string]bool
	sourceTypes map[models.SourceType]bool
}

// blocklistFile is the YAML shape of a blocklist file.
type blocklistFile struct {
	Tenants     []string `yaml:"tenants"`
	SourceTypes []string `yaml:"source_types"`
}

// NewBlocklist builds a blocklist from explicit entries.
func NewBlocklist(tenants []string, sourceTypes []models.SourceType) *Blocklist {
	b := &Blocklist{
		tenants:     make(map[string]bool, len(tenants)),
		sourceTypes: make(map[models.SourceType]bool, len(sourceTypes)),
	}
	for _, t := range tenants {
		b.tenants[t] = true
	}
	for _, s := range sourceTypes {
		b.sourceTypes[s] = true
	}
	return b
}

// LoadBlocklist reads a YAML blocklist file. An empty path yields an empty
// blocklist.
func LoadBlocklist(path string) (*Blocklist, error) {
	if path == "" {
		return NewBlocklist(nil, nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}

	var file blocklistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse blocklist: %w", err)
	}

	types := make([]models.SourceType, len(file.SourceTypes))
	for i, s := range file.SourceTypes {
		types[i] = models.SourceType(s)
	}
	return NewBlocklist(file.Tenants, types), nil
}

// Blocked reports whether the tenant or source type is suppressed.
func (b *Blocklist) Blocked(orgID string, sourceType models.SourceType) bool {
	return b.tenants[orgID] || b.sourceTypes[sourceType]
}

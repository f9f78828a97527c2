package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
)

// ConfigStore is the configuration side of the approval engine.
type ConfigStore interface {
	GetConfig(ctx context.Context, tenantID int64, docType approval.DocumentType) ([]approval.LevelConfig, error)
	ReplaceConfig(ctx context.Context, tenantID int64, docType approval.DocumentType, inputs []approval.LevelInput, actorID int64) ([]approval.LevelConfig, error)
}

// LevelsFile is the on-disk format accepted by "config replace".
//
//	levels:
//	  - role_ids: [10]
//	  - role_ids: [20, 21]
type LevelsFile struct {
	Levels []approval.LevelInput `yaml:"levels"`
}

// ParseLevelsFile decodes a levels file. An explicit empty list is valid and
// disables approval for the document type; a missing key is not.
func ParseLevelsFile(r io.Reader) ([]approval.LevelInput, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file LevelsFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("levels file is empty")
		}
		return nil, fmt.Errorf("parse levels file: %w", err)
	}
	if file.Levels == nil {
		return nil, errors.New(`levels file must define "levels" (use [] to disable approval)`)
	}
	return file.Levels, nil
}

// ConfigCLI implements the "config" commands.
type ConfigCLI struct {
	store ConfigStore
}

// NewConfigCLI constructs the helper.
func NewConfigCLI(store ConfigStore) (*ConfigCLI, error) {
	if store == nil {
		return nil, errors.New("config cli: store required")
	}
	return &ConfigCLI{store: store}, nil
}

// Get prints the level chain of a document type.
func (c *ConfigCLI) Get(ctx context.Context, tenantID int64, docType string, asJSON bool, out io.Writer) error {
	levels, err := c.store.GetConfig(ctx, tenantID, normalizeType(docType))
	if err != nil {
		return err
	}
	return printLevels(out, normalizeType(docType), levels, asJSON)
}

// Replace swaps the whole level chain with the content of r.
func (c *ConfigCLI) Replace(ctx context.Context, tenantID, actorID int64, docType string, r io.Reader, asJSON bool, out io.Writer) error {
	inputs, err := ParseLevelsFile(r)
	if err != nil {
		return err
	}
	levels, err := c.store.ReplaceConfig(ctx, tenantID, normalizeType(docType), inputs, actorID)
	if err != nil {
		return err
	}
	return printLevels(out, normalizeType(docType), levels, asJSON)
}

func normalizeType(docType string) approval.DocumentType {
	return approval.DocumentType(strings.ToUpper(strings.TrimSpace(docType)))
}

func printLevels(out io.Writer, docType approval.DocumentType, levels []approval.LevelConfig, asJSON bool) error {
	if asJSON {
		if levels == nil {
			levels = []approval.LevelConfig{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"document_type": docType, "levels": levels})
	}
	if len(levels) == 0 {
		_, err := fmt.Fprintf(out, "%s: no approval levels (documents are approved on submit)\n", docType)
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tROLES")
	for _, level := range levels {
		roles := make([]string, len(level.RoleIDs))
		for i, id := range level.RoleIDs {
			roles[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(tw, "%d\t%s\n", level.LevelIndex, strings.Join(roles, ","))
	}
	return tw.Flush()
}

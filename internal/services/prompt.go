package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/types"
)

var ErrPromptNotFound = errors.New("prompt not found")

// promptNamespace derives stable prompt IDs from names, so a redeploy with
// the same catalog keeps conversations bound to their prompt.
var promptNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// PromptCatalog serves the curated system-prompt templates. The catalog is
// loaded once at startup; editing prompts is a deploy, not an API call.
type PromptCatalog interface {
	List() []types.Prompt
	Get(id uuid.UUID) (*types.Prompt, error)
}

type CSVPromptCatalog struct {
	log     *logger.Logger
	prompts []types.Prompt
	byID    map[uuid.UUID]types.Prompt
}

// NewCSVPromptCatalog reads a headerless CSV of name,content,group rows.
func NewCSVPromptCatalog(log *logger.Logger, path string) (*CSVPromptCatalog, error) {
	serviceLog := log.With("service", "CSVPromptCatalog")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt catalog: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 3

	catalog := &CSVPromptCatalog{
		log:  serviceLog,
		byID: make(map[uuid.UUID]types.Prompt),
	}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt catalog: %w", err)
		}
		prompt := types.Prompt{
			ID:      uuid.NewSHA1(promptNamespace, []byte(record[0])),
			Name:    record[0],
			Content: record[1],
			Group:   record[2],
		}
		if _, exists := catalog.byID[prompt.ID]; exists {
			return nil, fmt.Errorf("duplicate prompt name %q in catalog", prompt.Name)
		}
		catalog.prompts = append(catalog.prompts, prompt)
		catalog.byID[prompt.ID] = prompt
	}
	sort.Slice(catalog.prompts, func(i, j int) bool {
		return catalog.prompts[i].Name < catalog.prompts[j].Name
	})
	serviceLog.Info("Loaded prompt catalog", "path", path, "count", len(catalog.prompts))
	return catalog, nil
}

func (pc *CSVPromptCatalog) List() []types.Prompt {
	out := make([]types.Prompt, len(pc.prompts))
	copy(out, pc.prompts)
	return out
}

func (pc *CSVPromptCatalog) Get(id uuid.UUID) (*types.Prompt, error) {
	prompt, ok := pc.byID[id]
	if !ok {
		return nil, ErrPromptNotFound
	}
	return &prompt, nil
}

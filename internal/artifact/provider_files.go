package artifact

import (
	"encoding/json"
	"path/filepath"

	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/provider"
)

// providerMeta is the shape of "<id>.meta.json".
type providerMeta struct {
	Provider      string               `json:"provider"`
	Tier          provider.Tier        `json:"tier"`
	Model         string               `json:"model,omitempty"`
	DurationMs    int64                `json:"durationMs"`
	CitationCount int                  `json:"citationCount"`
	TokenUsage    *provider.TokenUsage `json:"tokenUsage,omitempty"`
	Citations     []provider.Citation  `json:"citations"`
}

// WriteProviderFiles writes "<sanitizedID>.md" (the content verbatim) and
// "<sanitizedID>.meta.json" for one completed provider task, called by the
// dispatcher as each task settles.
func WriteProviderFiles(outputDir, sanitizedID string, result provider.Result) error {
	mdPath := filepath.Join(outputDir, sanitizedID+".md")
	if err := config.AtomicWriteFile(mdPath, []byte(result.Content), 0o644); err != nil {
		return err
	}

	meta := providerMeta{
		Provider:      result.Provider,
		Tier:          result.Tier,
		Model:         result.Model,
		DurationMs:    result.DurationMs,
		CitationCount: len(result.Citations),
		TokenUsage:    result.TokenUsage,
		Citations:     result.Citations,
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	metaPath := filepath.Join(outputDir, sanitizedID+".meta.json")
	return config.AtomicWriteFile(metaPath, raw, 0o644)
}

package pricing

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ModelPricing is the USD price per 1K tokens for one model.
type ModelPricing struct {
	Prompt     float64  `yaml:"prompt"`
	Completion float64  `yaml:"completion"`
	Aliases    []string `yaml:"aliases,omitempty"`
}

// Table is the pricing file: per-model prices plus an optional fallback.
type Table struct {
	Models  map[string]ModelPricing `yaml:"models"`
	Default *ModelPricing           `yaml:"default,omitempty"`
}

// Usage contains the token counts of one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Price is the computed cost of one completion.
type Price struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
	PromptCost       Money
	CompletionCost   Money
	Total            Money
	Known            bool // false when neither the model nor a default was priced
}

// ParseTable decodes and validates a YAML pricing table.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	for name, mp := range t.Models {
		if mp.Prompt < 0 || mp.Completion < 0 {
			return nil, fmt.Errorf("model %s: prices must not be negative", name)
		}
	}
	if t.Default != nil && (t.Default.Prompt < 0 || t.Default.Completion < 0) {
		return nil, fmt.Errorf("default: prices must not be negative")
	}
	return &t, nil
}

// Find looks up pricing for a model by name, then by alias, then falls back to
// the default entry.
func (t *Table) Find(model string) (ModelPricing, bool) {
	if t == nil {
		return ModelPricing{}, false
	}
	if mp, ok := t.Models[model]; ok {
		return mp, true
	}
	for _, mp := range t.Models {
		for _, alias := range mp.Aliases {
			if alias == model {
				return mp, true
			}
		}
	}
	if t.Default != nil {
		return *t.Default, true
	}
	return ModelPricing{}, false
}

// Catalog holds the active pricing table. It is safe for concurrent use and
// can be reloaded from its file while requests are being priced.
type Catalog struct {
	path  string
	mu    sync.RWMutex
	table *Table
}

// NewCatalog returns a catalog serving t. A nil table prices everything at
// zero.
func NewCatalog(t *Table) *Catalog {
	return &Catalog{table: t}
}

// LoadCatalog reads a pricing table from path. The path is remembered for
// Reload and Watch.
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the file the catalog was loaded from, if any.
func (c *Catalog) Path() string { return c.path }

// Reload re-reads the pricing file. On error the previous table stays active.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read pricing file %s: %w", c.path, err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return fmt.Errorf("failed to parse pricing file %s: %w", c.path, err)
	}
	c.Set(t)
	return nil
}

// Set replaces the active table.
func (c *Catalog) Set(t *Table) {
	c.mu.Lock()
	c.table = t
	c.mu.Unlock()
}

// Cost prices a completion. Unknown models cost zero.
func (c *Catalog) Cost(model string, u Usage) Price {
	p := Price{Model: model, PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens}
	if c == nil {
		return p
	}

	c.mu.RLock()
	mp, ok := c.table.Find(model)
	c.mu.RUnlock()
	if !ok {
		return p
	}

	p.Known = true
	p.PromptCost = NewMoneyFromUSD(float64(u.PromptTokens) / 1000.0 * mp.Prompt)
	p.CompletionCost = NewMoneyFromUSD(float64(u.CompletionTokens) / 1000.0 * mp.Completion)
	p.Total = p.PromptCost.Add(p.CompletionCost)
	return p
}

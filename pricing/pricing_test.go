package pricing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleTable = `
models:
  openai/gpt-4o-mini:
    prompt: 0.00015
    completion: 0.0006
    aliases: [gpt-4o-mini, gpt-4o-mini-2024-07-18]
  anthropic/claude-3.5-sonnet:
    prompt: 0.003
    completion: 0.015
`

func mustTable(t *testing.T, src string) *Table {
	t.Helper()
	tbl, err := ParseTable([]byte(src))
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	return tbl
}

func TestCost_KnownModel(t *testing.T) {
	c := NewCatalog(mustTable(t, sampleTable))
	p := c.Cost("anthropic/claude-3.5-sonnet", Usage{PromptTokens: 11, CompletionTokens: 369})

	wantPrompt := NewMoneyFromUSD(11.0 / 1000.0 * 0.003)
	wantCompletion := NewMoneyFromUSD(369.0 / 1000.0 * 0.015)
	if !p.Known {
		t.Fatal("expected model to be priced")
	}
	if p.PromptCost != wantPrompt || p.CompletionCost != wantCompletion {
		t.Fatalf("costs = %s/%s, want %s/%s", p.PromptCost, p.CompletionCost, wantPrompt, wantCompletion)
	}
	if p.Total != wantPrompt.Add(wantCompletion) {
		t.Fatalf("total = %s", p.Total)
	}
}

func TestCost_Alias(t *testing.T) {
	c := NewCatalog(mustTable(t, sampleTable))
	direct := c.Cost("openai/gpt-4o-mini", Usage{PromptTokens: 1000, CompletionTokens: 1000})
	alias := c.Cost("gpt-4o-mini-2024-07-18", Usage{PromptTokens: 1000, CompletionTokens: 1000})
	if !alias.Known || alias.Total != direct.Total {
		t.Fatalf("alias priced %s, direct %s", alias.Total, direct.Total)
	}
	if direct.Total != NewMoneyFromUSD(0.00075) {
		t.Fatalf("unexpected total %s", direct.Total)
	}
}

func TestCost_UnknownModel(t *testing.T) {
	c := NewCatalog(mustTable(t, sampleTable))
	p := c.Cost("some-new-future-model", Usage{PromptTokens: 100, CompletionTokens: 200})
	if p.Known || p.Total != 0 {
		t.Fatalf("expected zero unknown price, got %+v", p)
	}
}

func TestCost_DefaultFallback(t *testing.T) {
	c := NewCatalog(mustTable(t, sampleTable+"default:\n  prompt: 0.001\n  completion: 0.002\n"))
	p := c.Cost("mystery", Usage{PromptTokens: 1000, CompletionTokens: 500})
	if !p.Known || p.Total != NewMoneyFromUSD(0.002) {
		t.Fatalf("expected default pricing, got %+v", p)
	}
}

func TestCost_NilCatalogAndZeroUsage(t *testing.T) {
	var c *Catalog
	if p := c.Cost("m", Usage{PromptTokens: 5}); p.Known || p.Total != 0 {
		t.Fatalf("nil catalog should price nothing: %+v", p)
	}
	if p := NewCatalog(nil).Cost("m", Usage{}); p.Known {
		t.Fatalf("empty catalog should price nothing: %+v", p)
	}
	c = NewCatalog(mustTable(t, sampleTable))
	if p := c.Cost("openai/gpt-4o-mini", Usage{}); p.Total != 0 {
		t.Fatalf("expected zero cost for zero usage, got %s", p.Total)
	}
}

func TestParseTable_Invalid(t *testing.T) {
	for name, src := range map[string]string{
		"negative": "models:\n  m:\n    prompt: -1\n",
		"default":  "default:\n  completion: -0.5\n",
		"syntax":   "models: [",
	} {
		if _, err := ParseTable([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadCatalog_AndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte(sampleTable), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if c.Path() != path {
		t.Errorf("Path() = %q", c.Path())
	}

	if err := os.WriteFile(path, []byte("models: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err == nil {
		t.Fatal("expected reload error for broken file")
	}
	if !c.Cost("gpt-4o-mini", Usage{PromptTokens: 1}).Known {
		t.Fatal("previous table should survive a failed reload")
	}

	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte(sampleTable), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, nil) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch returned %v", err)
		}
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("models:\n  new-model:\n    prompt: 1\n    completion: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.Cost("new-model", Usage{PromptTokens: 1000}).Known {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("catalog was not reloaded after the file changed")
}

func TestExamplePricingFile(t *testing.T) {
	c, err := LoadCatalog(filepath.Join("..", "pricing.example.yaml"))
	if err != nil {
		t.Fatalf("example pricing file does not load: %v", err)
	}
	if !c.Cost("gpt-4o-mini", Usage{PromptTokens: 1}).Known {
		t.Error("example file should price gpt-4o-mini by alias")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
openai:
  api_key: test-key
defaults:
  models:
    - openai:gpt-image-1
    - openai:dall-e-3
  concurrency: 5
  variants: 2
select:
  min_score: 60
  top_k: 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.OpenAI.APIKey != "test-key" {
		t.Errorf("OpenAI.APIKey = %q, want %q", cfg.OpenAI.APIKey, "test-key")
	}
	if len(cfg.Defaults.Models) != 2 {
		t.Errorf("Defaults.Models = %v, want 2 entries", cfg.Defaults.Models)
	}
	if cfg.Defaults.Concurrency != 5 {
		t.Errorf("Defaults.Concurrency = %d, want 5", cfg.Defaults.Concurrency)
	}
	if cfg.Select.MinScore != 60 {
		t.Errorf("Select.MinScore = %v, want 60", cfg.Select.MinScore)
	}
}

func TestLoadFromPath_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.Defaults.Concurrency != 3 {
		t.Errorf("default concurrency = %d, want 3", cfg.Defaults.Concurrency)
	}
	if cfg.Defaults.MaxRetries != 3 {
		t.Errorf("default max retries = %d, want 3", cfg.Defaults.MaxRetries)
	}
	if cfg.Select.TopK != 3 {
		t.Errorf("default top_k = %d, want 3", cfg.Select.TopK)
	}
	if cfg.Defaults.CritiqueModel == "" {
		t.Error("default critique model should not be empty")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("ATELIER_TEST_KEY", "sk-expanded")

	got := expandEnv("${ATELIER_TEST_KEY}")
	if got != "sk-expanded" {
		t.Errorf("expandEnv() = %q, want %q", got, "sk-expanded")
	}
}

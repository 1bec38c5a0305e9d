package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DIALOG_FETCH_DELAY_MS", "")
	t.Setenv("BATCH_DELAY_MS", "")
	t.Setenv("MAX_TOP_N", "")

	cfg := Load()
	if cfg.DialogFetchDelayMS != 100 {
		t.Fatalf("expected dialog delay 100ms, got %d", cfg.DialogFetchDelayMS)
	}
	if cfg.BatchDelayMS != 500 {
		t.Fatalf("expected batch delay 500ms, got %d", cfg.BatchDelayMS)
	}
	if cfg.MaxTopN != 50 {
		t.Fatalf("expected max top 50, got %d", cfg.MaxTopN)
	}
}

func TestLoadParsesListsAndFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")

	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitBurst != 40 {
		t.Fatalf("expected fallback burst 40, got %d", cfg.RateLimitBurst)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Config{Timezone: "Mars/Olympus_Mons"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
}

func TestLoadDotEnvKeepsProcessEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport QI_TEST_A=\"line\\nbreak\"\nQI_TEST_B=plain # trailing\nQI_TEST_C='single'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("QI_TEST_C", "from-process")
	t.Setenv("QI_TEST_A", "")
	os.Unsetenv("QI_TEST_A")
	t.Setenv("QI_TEST_B", "")
	os.Unsetenv("QI_TEST_B")

	loaded, err := LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected one loaded file, got %v", loaded)
	}
	if got := os.Getenv("QI_TEST_A"); got != "line\nbreak" {
		t.Fatalf("unexpected QI_TEST_A %q", got)
	}
	if got := os.Getenv("QI_TEST_B"); got != "plain" {
		t.Fatalf("unexpected QI_TEST_B %q", got)
	}
	if got := os.Getenv("QI_TEST_C"); got != "from-process" {
		t.Fatalf("expected process env to win, got %q", got)
	}
}

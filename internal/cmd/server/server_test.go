package server

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":3000" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.DBPath != "data/haxor.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.MasterID != "master" {
		t.Fatalf("expected default master id, got %q", cfg.MasterID)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("expected default history limit, got %d", cfg.HistoryLimit)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("HAXOR_HTTP_ADDR", "env-addr")
	t.Setenv("HAXOR_DB_PATH", "env-db")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-addr",
		"-master-id", "overseer",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.DBPath != "env-db" {
		t.Fatalf("expected env db path, got %q", cfg.DBPath)
	}
	if cfg.MasterID != "overseer" {
		t.Fatalf("expected flag master id, got %q", cfg.MasterID)
	}
}

func TestParseConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "haxor.yaml")
	contents := "http_addr: file-addr\nhistory_limit: 25\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("HAXOR_CONFIG_FILE", path)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "file-addr" {
		t.Fatalf("expected file http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.HistoryLimit != 25 {
		t.Fatalf("expected file history limit, got %d", cfg.HistoryLimit)
	}
	if cfg.MasterID != "master" {
		t.Fatalf("file overlay must keep env defaults, got %q", cfg.MasterID)
	}
}

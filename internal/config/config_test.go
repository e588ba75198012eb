package config

import "testing"

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv(func(string) string { return "" })
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Env != "dev" {
		t.Fatalf("Env: got %q, want dev", cfg.Env)
	}
	if cfg.Addr != "127.0.0.1:2424" {
		t.Fatalf("Addr: got %q", cfg.Addr)
	}
	if cfg.SnapshotPath != "userdb.json" {
		t.Fatalf("SnapshotPath: got %q", cfg.SnapshotPath)
	}
}

func TestLoadFromEnv_InvalidEnv(t *testing.T) {
	env := map[string]string{"APP_ENV": "staging"}
	_, err := LoadFromEnv(func(k string) string { return env[k] })
	if err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoadFromEnv_ConflictingBackends(t *testing.T) {
	env := map[string]string{
		"APP_DB_DSN":  "postgres://localhost/chatter",
		"APP_DB_PATH": "chatter.db",
	}
	if _, err := LoadFromEnv(func(k string) string { return env[k] }); err == nil {
		t.Fatalf("expected error when both DSN and sqlite path are set")
	}

	env = map[string]string{
		"APP_DB_DSN":        "postgres://localhost/chatter",
		"APP_SNAPSHOT_PATH": "userdb.json",
	}
	if _, err := LoadFromEnv(func(k string) string { return env[k] }); err == nil {
		t.Fatalf("expected error when snapshot path is combined with a database")
	}
}

func TestLoadFromEnv_DatabaseDisablesSnapshotDefault(t *testing.T) {
	env := map[string]string{"APP_DB_PATH": "chatter.db"}
	cfg, err := LoadFromEnv(func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.SnapshotPath != "" {
		t.Fatalf("SnapshotPath: got %q, want empty", cfg.SnapshotPath)
	}
	if cfg.DBPath != "chatter.db" {
		t.Fatalf("DBPath: got %q", cfg.DBPath)
	}
}

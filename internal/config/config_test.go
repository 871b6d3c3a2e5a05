package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statify.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
establishments:
  - name: Кафе Ромашка
    niche: кафе
    address: "Гурьянова, 30"
    coordinates: {lat: 55.68, lon: 37.72}
    queries: [кофе, кофейня]
`

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if got := cfg.Attempts; got.Process != 5 || got.ListRetrieve != 2 || got.TargetLocate != 2 {
		t.Errorf("attempt budgets: got %+v, want 5/2/2", got)
	}
	if cfg.Attempts.MaxDecoys != 5 || cfg.Attempts.MaxZoom != 5 {
		t.Errorf("interaction bounds: got decoys=%d zoom=%d, want 5/5",
			cfg.Attempts.MaxDecoys, cfg.Attempts.MaxZoom)
	}
	if cfg.Browser.ConditionWait != 30*time.Second {
		t.Errorf("ConditionWait: got %v, want 30s", cfg.Browser.ConditionWait)
	}
	if cfg.SMS.CodeDeadline != 185*time.Second {
		t.Errorf("CodeDeadline: got %v, want 185s", cfg.SMS.CodeDeadline)
	}

	est := cfg.Establishments[0]
	if est.ID != "Кафе Ромашка" {
		t.Errorf("ID: got %q, want the name as fallback", est.ID)
	}
	if est.Repeats != 1 {
		t.Errorf("Repeats: got %d, want default 1", est.Repeats)
	}
}

func TestLoadFile_ExplicitValuesKept(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
establishments:
  - id: romashka
    name: Кафе Ромашка
    address: "Гурьянова, 30"
    queries: [кофе]
    repeats: 3
    unique_case: true
    action_order: [site, whatsapp]
attempts:
  process: 7
  target_locate: 4
repetition_pause: 10m
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Attempts.Process != 7 || cfg.Attempts.TargetLocate != 4 {
		t.Errorf("attempts: got %+v, want process=7 target_locate=4", cfg.Attempts)
	}
	if cfg.Attempts.ListRetrieve != 2 {
		t.Errorf("ListRetrieve: got %d, want default 2 alongside explicit values", cfg.Attempts.ListRetrieve)
	}
	if cfg.RepetitionPause != 10*time.Minute {
		t.Errorf("RepetitionPause: got %v, want 10m", cfg.RepetitionPause)
	}

	est := cfg.Establishments[0]
	if est.ID != "romashka" || est.Repeats != 3 || !est.UniqueCase {
		t.Errorf("establishment: got %+v, want explicit id/repeats/unique_case kept", est)
	}
	if len(est.ActionOrder) != 2 || est.ActionOrder[0] != "site" {
		t.Errorf("ActionOrder: got %v, want [site whatsapp]", est.ActionOrder)
	}
}

func TestLoadFile_EnvOverlaysSecrets(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "env-chat")
	t.Setenv("API_365SMS_KEY", "env-key")
	t.Setenv("ACCOUNT_PASSWORD", "env-pw")

	cfg, err := LoadFile(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Telegram.Token != "env-token" || cfg.Telegram.ChatID != "env-chat" {
		t.Errorf("telegram: got %+v, want env values", cfg.Telegram)
	}
	if cfg.SMS.APIKey != "env-key" {
		t.Errorf("APIKey: got %q, want env value", cfg.SMS.APIKey)
	}
	if cfg.Account.Password != "env-pw" {
		t.Errorf("Password: got %q, want env value", cfg.Account.Password)
	}
}

func TestLoadFile_FileValueWinsOverEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")

	cfg, err := LoadFile(writeConfig(t, minimalConfig+`
telegram:
  token: file-token
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Telegram.Token != "file-token" {
		t.Errorf("Token: got %q, want the file value to win", cfg.Telegram.Token)
	}
}

func TestLoadFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no establishments", "report: {dir: .}"},
		{"nameless establishment", "establishments:\n  - queries: [кофе]"},
		{"no queries", "establishments:\n  - name: Кафе"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tt.body)); err == nil {
				t.Error("LoadFile: want validation error")
			}
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile: want error for missing file")
	}
}

func TestMaxRepeats(t *testing.T) {
	cfg := &Config{Establishments: []Establishment{
		{Repeats: 1}, {Repeats: 3}, {Repeats: 2},
	}}
	if got := cfg.MaxRepeats(); got != 3 {
		t.Errorf("MaxRepeats: got %d, want 3", got)
	}
}

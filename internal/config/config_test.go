package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexitrain.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{"database":{"postgres":{"dsn":"postgres://x"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Lesson.WordsPerLesson != 30 {
		t.Errorf("words_per_lesson = %d, want 30", cfg.Lesson.WordsPerLesson)
	}
	if cfg.Lesson.MasteredThreshold != 30 {
		t.Errorf("mastered_threshold = %d, want 30", cfg.Lesson.MasteredThreshold)
	}
	if cfg.Lesson.ChoiceToInputThreshold != 3 {
		t.Errorf("choice_to_input_threshold = %d, want 3", cfg.Lesson.ChoiceToInputThreshold)
	}
	if cfg.Lesson.FuzzyThreshold != 2 {
		t.Errorf("fuzzy_threshold = %d, want 2", cfg.Lesson.FuzzyThreshold)
	}
	if cfg.SRS.DefaultEF != 2.5 || cfg.SRS.MinEF != 1.3 {
		t.Errorf("srs defaults = %v/%v, want 2.5/1.3", cfg.SRS.DefaultEF, cfg.SRS.MinEF)
	}
	if cfg.LLM.RatePerMin != 2500 || cfg.LLM.MaxInflight != 10 {
		t.Errorf("llm defaults = %d/%d, want 2500/10", cfg.LLM.RatePerMin, cfg.LLM.MaxInflight)
	}
	if cfg.Notify.WindowStart != "07:00" || cfg.Notify.WindowEnd != "23:00" {
		t.Errorf("notify window = %s-%s, want 07:00-23:00", cfg.Notify.WindowStart, cfg.Notify.WindowEnd)
	}
	if cfg.Notify.InactiveHours != 6 {
		t.Errorf("notify_inactive_hours = %d, want 6", cfg.Notify.InactiveHours)
	}
	if cfg.Lesson.TimeoutSeconds != 7200 {
		t.Errorf("lesson_timeout_s = %d, want 7200", cfg.Lesson.TimeoutSeconds)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("LEXITRAIN_TEST_DSN", "postgres://from-env")
	path := writeConfig(t, `{
		"database": {"postgres": {"dsn": "${LEXITRAIN_TEST_DSN}"}},
		"provider": {"api_key": "${LEXITRAIN_MISSING_KEY:fallback}"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Postgres.DSN != "postgres://from-env" {
		t.Errorf("dsn = %q, want env value", cfg.Database.Postgres.DSN)
	}
	if cfg.Provider.APIKey != "fallback" {
		t.Errorf("api_key = %q, want fallback default", cfg.Provider.APIKey)
	}
}

func TestLoadRejectsBadWindow(t *testing.T) {
	path := writeConfig(t, `{"notify":{"notify_window_start":"25:99"}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for out-of-range window")
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		minutes int
		wantErr bool
	}{
		{"07:00", 420, false},
		{"23:00", 1380, false},
		{"00:00", 0, false},
		{"24:00", 0, true},
		{"junk", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): %v", tc.in, err)
			continue
		}
		if got.Minutes() != tc.minutes {
			t.Errorf("ParseClock(%q) = %d, want %d", tc.in, got.Minutes(), tc.minutes)
		}
	}
}

package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.input); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	Init("info", "text")

	run := L.With(slog.String("run_id", "r1"))
	ctx := WithContext(context.Background(), run)
	if got := FromContext(ctx); got != run {
		t.Fatal("FromContext did not return the stored logger")
	}
	if got := FromContext(context.Background()); got != L {
		t.Fatal("FromContext without value should return the global logger")
	}
}

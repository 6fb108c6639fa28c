package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestComponentAndCorrelation(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(Config{Level: "info", Format: "json"})

	ctx := ContextWithCorrelationID(context.Background(), "abc12345")
	Ctx(ctx, Component("pipeline")).Info().Int64("item_id", 7).Msg("item stored")

	out := buf.String()
	for _, want := range []string{`"component":"pipeline"`, `"correlation_id":"abc12345"`, `"item_id":7`, `"message":"item stored"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(Config{Level: "info", Format: "json"})

	Info().Msg("hidden")
	Warn().Msg("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn line missing")
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 || a == b {
		t.Errorf("ids %q %q should be 8 chars and distinct", a, b)
	}
}

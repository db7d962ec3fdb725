package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("component", "visualizer")).Info(context.Background(), "render pass complete",
		Int("markers", 5), Err(errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "render pass complete" {
		t.Errorf("msg: got %v", entry["msg"])
	}
	if entry["component"] != "visualizer" {
		t.Errorf("component: got %v", entry["component"])
	}
	if entry["markers"] != float64(5) {
		t.Errorf("markers: got %v", entry["markers"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error: got %v", entry["error"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden too")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("expected warn line, got %q", out)
	}
}

func TestNoopDropsEverything(t *testing.T) {
	log := Noop().With(String("k", "v"))
	log.Error(context.Background(), "nothing happens")
}

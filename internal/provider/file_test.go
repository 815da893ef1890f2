package provider

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFile_Send(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f := NewFile(ProviderConfig{Endpoint: dir})
	f.now = func() time.Time { return time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) }

	res, err := f.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := filepath.Join(dir, "2026-03-09", "content-1-sub-2.eml")
	if res.Metadata["path"] != want {
		t.Errorf("path = %q, want %q", res.Metadata["path"], want)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read eml: %v", err)
	}
	content := string(data)
	for _, s := range []string{"reader@example.com", "multipart/alternative", "<" + res.ProviderMessageID + ">"} {
		if !strings.Contains(content, s) {
			t.Errorf("eml missing %q", s)
		}
	}
}

func TestFile_RedeliveryOverwrites(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(ProviderConfig{Endpoint: dir})
	f.now = func() time.Time { return time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) }

	msg := testMessage()
	msg.ID = "content-1/sub-2"
	for i := 0; i < 2; i++ {
		if _, err := f.Send(context.Background(), msg); err != nil {
			t.Fatalf("Send #%d: %v", i+1, err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "2026-03-09"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "content-1_sub-2.eml" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("entries = %v, want [content-1_sub-2.eml]", names)
	}
}

func TestFile_SendInvalidRecipientIsPermanent(t *testing.T) {
	f := NewFile(ProviderConfig{Endpoint: t.TempDir()})
	msg := testMessage()
	msg.To = "broken"

	_, err := f.Send(context.Background(), msg)
	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
}

func TestFile_HealthCheck(t *testing.T) {
	if NewFile(ProviderConfig{}).dir != defaultOutputDir {
		t.Error("expected default output dir")
	}

	dir := filepath.Join(t.TempDir(), "nested")
	f := NewFile(ProviderConfig{Endpoint: dir})
	if err := f.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %d entries", len(entries))
	}
}

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pario-ai/stylist/pkg/config"
	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/recommend"
)

func demoConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	wardrobeFile := filepath.Join(dir, "wardrobe.yaml")
	data := "items:\n  - id: 1\n    category: shirt\n    color: white\n  - id: 2\n    category: shorts\n    color: navy\n"
	if err := os.WriteFile(wardrobeFile, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "stylist.db")
	cfg.LLM.Provider = "demo"
	cfg.Wardrobe.Source = "file"
	cfg.Wardrobe.File = wardrobeFile
	cfg.Cache.Enabled = true
	cfg.Audit.Enabled = true
	cfg.Audit.DBPath = filepath.Join(dir, "audit.db")
	return cfg
}

func TestNewAppDemo(t *testing.T) {
	cfg := demoConfig(t)
	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	ctx := context.Background()
	rec, err := a.service.Suggest(ctx, recommend.Request{Text: "beach day"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Outfit.Top == nil || rec.Outfit.Top.Item.ID != 1 || rec.Outfit.Bottom == nil || rec.Outfit.Bottom.Item.ID != 2 {
		t.Errorf("unexpected outfit: %+v", rec.Outfit)
	}

	entries, err := a.auditor.Query(ctx, models.AuditQueryOpts{RequestID: rec.Metadata.RequestID})
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d (%v)", len(entries), err)
	}
	if !strings.Contains(formatAuditEntries(entries), "assembled") {
		t.Errorf("audit table missing outcome")
	}

	saved, err := a.gateway.Save(ctx, models.SaveRequest{Outfit: rec.Outfit, OriginalRequest: "beach day"})
	if err != nil {
		t.Fatal(err)
	}
	if saved.Name != "Everyday Classic" {
		t.Errorf("expected demo name, got %q", saved.Name)
	}

	sched, err := newScheduler(a)
	if err != nil {
		t.Fatal(err)
	}
	for _, job := range []string{"ledger-rollover", "usage-prune", "cache-prune", "audit-prune"} {
		if _, ok := sched.Next(job); !ok {
			t.Errorf("job %s not scheduled", job)
		}
	}
}

func TestNewAppMissingWardrobeDB(t *testing.T) {
	cfg := demoConfig(t)
	cfg.Wardrobe.Source = "sqlite"
	cfg.Wardrobe.DBPath = filepath.Join(t.TempDir(), "missing", "wardrobe.db")
	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		// Read-only opens are lazy; the first query reports the missing file.
		defer func() { _ = a.Close() }()
		if _, err := a.service.Suggest(context.Background(), recommend.Request{Text: "x"}); err == nil {
			t.Error("expected an error for a missing wardrobe database")
		}
	}
}

func TestFormatLimit(t *testing.T) {
	if got := formatLimit(3, 0); got != "3 requests (no limit)" {
		t.Errorf("unexpected %q", got)
	}
	if got := formatLimit(3, 10); got != "3 / 10 requests" {
		t.Errorf("unexpected %q", got)
	}
}

func TestMCPServerTools(t *testing.T) {
	a, err := newApp(demoConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"stylist_suggest","arguments":{"request":"picnic"}}}` + "\n" +
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"stylist_cost_report"}}` + "\n")
	var out strings.Builder
	if err := newMCPServer(a).Run(context.Background(), in, &out); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{"stylist_budget_history", "stylist_saved_outfits", "#1 white shirt", "demo-mode"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, `"isError":true`) {
		t.Errorf("unexpected tool error:\n%s", got)
	}
}

package commands

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"concertcal/internal/auth"
	"concertcal/internal/calendar"
	"concertcal/internal/config"
	"concertcal/internal/model"
)

func TestBasicAuthSnippet(t *testing.T) {
	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatal(err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal([]byte(BasicAuthSnippet("admin", hash)), &cfg); err != nil {
		t.Fatalf("Snippet is not valid YAML: %v", err)
	}
	if cfg.BasicAuth == nil || cfg.BasicAuth.Username != "admin" || cfg.BasicAuth.PasswordHash != hash {
		t.Fatalf("Unexpected basic auth %+v", cfg.BasicAuth)
	}
	ok, err := auth.VerifyPassword("secret", cfg.BasicAuth.PasswordHash)
	if err != nil || !ok {
		t.Errorf("Expected hash from snippet to verify, got %v %v", ok, err)
	}
}

func TestPrintMonth(t *testing.T) {
	var b strings.Builder
	key := calendar.MonthKey{Year: 2024, Month: 1}
	err := PrintMonth(&b, key, model.ConcertsByDay{
		29: {{ArtistName: "Jannabi", PostingURL: "https://example.com/p/1", SourceID: "backend"}},
		3:  {{ArtistName: "Hyukoh"}},
	})
	if err != nil {
		t.Fatalf("PrintMonth failed: %v", err)
	}

	out := b.String()
	if !strings.HasPrefix(out, "February 2024\n\nSu Mo Tu We Th Fr Sa\n") {
		t.Errorf("Unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "25 26 27 28 29") {
		t.Errorf("Expected leap day in grid:\n%s", out)
	}
	hyukoh := strings.Index(out, " 3  Hyukoh")
	jannabi := strings.Index(out, "29  Jannabi  https://example.com/p/1  [backend]")
	if hyukoh < 0 || jannabi < 0 || hyukoh > jannabi {
		t.Errorf("Expected concerts listed by day:\n%s", out)
	}

	b.Reset()
	if err := PrintMonth(&b, key, nil); err != nil || !strings.Contains(b.String(), "No concerts.") {
		t.Errorf("Expected empty listing, got %q %v", b.String(), err)
	}
}

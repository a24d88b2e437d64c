package casregistry

import (
	"flag"
	"testing"

	"xdao.co/resultledger/storage"
)

func TestRegister_RejectsIncompleteBackends(t *testing.T) {
	if err := Register(Backend{}); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := Register(Backend{Name: "x-no-open", Usage: UsageCLI}); err == nil {
		t.Fatalf("expected error for missing Open")
	}
	open := func(map[string]string) (storage.CAS, func() error, error) { return nil, nil, nil }
	if err := Register(Backend{Name: "x-no-usage", Open: open}); err == nil {
		t.Fatalf("expected error for missing Usage")
	}
}

func TestOpen_RespectsUsageAndPassesConfig(t *testing.T) {
	var seen map[string]string
	MustRegister(Backend{
		Name:    "test-daemon-only",
		Usage:   UsageDaemon,
		Options: map[string]string{"test-dir": "directory"},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			seen = cfg
			return nil, nil, nil
		},
	})

	if _, _, err := Open("test-daemon-only", UsageCLI, nil); err == nil {
		t.Fatalf("expected usage rejection")
	}
	if _, _, err := Open("test-daemon-only", UsageDaemon, map[string]string{"test-dir": "/tmp/x"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if seen["test-dir"] != "/tmp/x" {
		t.Fatalf("config not passed through: %v", seen)
	}
	if _, _, err := Open("nope", UsageDaemon, nil); err == nil {
		t.Fatalf("expected unknown backend error")
	}

	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	vals := BindFlags(fs, UsageDaemon)
	if err := fs.Parse([]string{"--test-dir", " /srv/cas "}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := vals.Config()["test-dir"]; got != "/srv/cas" {
		t.Fatalf("flag value: got %q", got)
	}
}

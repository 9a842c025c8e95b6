package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/helioscrm/walink/internal/config"
)

func TestRootCommandTree(t *testing.T) {
	root := buildRootCmd()
	if root.Use != "walink" {
		t.Errorf("root use = %q", root.Use)
	}
	if root.Version != version {
		t.Errorf("version = %q, want %q", root.Version, version)
	}

	want := map[string]bool{"serve": false, "instances": false}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestInstancesSubcommands(t *testing.T) {
	root := buildRootCmd()
	inst, _, err := root.Find([]string{"instances"})
	if err != nil {
		t.Fatalf("find instances: %v", err)
	}
	for _, name := range []string{"list", "status", "connect", "cancel"} {
		if _, _, err := inst.Find([]string{name}); err != nil {
			t.Errorf("missing instances subcommand %q: %v", name, err)
		}
	}
}

func TestServerBase(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "10.0.0.5"
	cfg.Server.HTTPPort = 9000
	if got := serverBase(cfg); got != "http://10.0.0.5:9000" {
		t.Errorf("serverBase = %q", got)
	}
}

func TestShowScanCodeWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	if err := showScanCode("pairing-code-123", path); err != nil {
		t.Fatalf("showScanCode: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat png: %v", err)
	}
	if info.Size() == 0 {
		t.Error("png file is empty")
	}
}

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCommandWiring(t *testing.T) {
	for _, name := range []string{"sessions", "demo"} {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command missing %q subcommand", name)
		}
	}

	subs := map[string]bool{}
	for _, c := range sessionsCmd.Commands() {
		subs[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		if !subs[name] {
			t.Errorf("sessions command missing %q subcommand", name)
		}
	}
}

func TestSessionsCommands_EmptyDir(t *testing.T) {
	cfg.Sessions.Dir = t.TempDir()

	if err := runSessionsList(sessionsListCmd, nil); err != nil {
		t.Errorf("list on empty dir: %v", err)
	}
	if err := runSessionsStats(sessionsStatsCmd, nil); err != nil {
		t.Errorf("stats on empty dir: %v", err)
	}
	if err := runSessionsShow(sessionsShowCmd, []string{"absent.md"}); err == nil {
		t.Error("show of a missing record should fail")
	}
}

func TestSessionsShow_RendersRecord(t *testing.T) {
	dir := t.TempDir()
	cfg.Sessions.Dir = dir

	record := "# Debug Session\n\n**Status:** SUCCESS  \n**Type:** `runtime.Error`  \n"
	if err := os.WriteFile(filepath.Join(dir, "calc_divide_1.md"), []byte(record), 0644); err != nil {
		t.Fatal(err)
	}
	if err := runSessionsShow(sessionsShowCmd, []string{"calc_divide_1.md"}); err != nil {
		t.Errorf("show: %v", err)
	}
}

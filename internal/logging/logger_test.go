package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetState(t *testing.T) {
	t.Helper()
	CloseAll()
	t.Cleanup(func() {
		CloseAll()
		stateMu.Lock()
		debugMode = false
		logsDir = ""
		logLevel = LevelInfo
		stateMu.Unlock()
	})
}

func TestInitialize_DisabledIsNoOp(t *testing.T) {
	resetState(t)
	ws := t.TempDir()

	if err := Initialize(ws, false, "info"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Boot("should go nowhere")

	if _, err := os.Stat(filepath.Join(ws, ".reflex")); !os.IsNotExist(err) {
		t.Error("disabled logging must not create the logs directory")
	}
}

func TestInitialize_WritesCategoryFiles(t *testing.T) {
	resetState(t)
	ws := t.TempDir()

	if err := Initialize(ws, true, "debug"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Apply("rebound %s", "divide")
	ApplyDebug("detail line")
	CloseAll()

	dir := filepath.Join(ws, ".reflex", "logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}

	var applyFile string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_apply.log") {
			applyFile = filepath.Join(dir, e.Name())
		}
	}
	if applyFile == "" {
		t.Fatalf("no apply category file in %v", entries)
	}

	data, err := os.ReadFile(applyFile)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "[INFO] rebound divide") {
		t.Errorf("apply log missing info line:\n%s", content)
	}
	if !strings.Contains(content, "[DEBUG] detail line") {
		t.Errorf("apply log missing debug line at debug level:\n%s", content)
	}
}

func TestLevelFiltering(t *testing.T) {
	resetState(t)
	ws := t.TempDir()

	if err := Initialize(ws, true, "warn"); err != nil {
		t.Fatal(err)
	}
	l := Get(CategoryLLM)
	l.Info("hidden info")
	l.Warn("visible warning")
	l.Error("visible error")
	CloseAll()

	dir := filepath.Join(ws, ".reflex", "logs")
	entries, _ := os.ReadDir(dir)
	var content string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_llm.log") {
			data, _ := os.ReadFile(filepath.Join(dir, e.Name()))
			content = string(data)
		}
	}

	if strings.Contains(content, "hidden info") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(content, "visible warning") || !strings.Contains(content, "visible error") {
		t.Errorf("warn/error lines missing:\n%s", content)
	}
}

func TestGet_SameInstancePerCategory(t *testing.T) {
	resetState(t)
	if err := Initialize(t.TempDir(), true, "info"); err != nil {
		t.Fatal(err)
	}
	defer CloseAll()

	if Get(CategoryBoot) != Get(CategoryBoot) {
		t.Error("Get should return one logger per category")
	}
}

func TestTimer_Stop(t *testing.T) {
	resetState(t)
	timer := StartTimer(CategoryLLM, "completion")
	if d := timer.Stop(); d < 0 {
		t.Errorf("elapsed = %v", d)
	}
}

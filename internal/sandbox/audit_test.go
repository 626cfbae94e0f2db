package sandbox

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autoengineer/internal/logging"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	start := func(bin string) { m.Record(AuditEvent{Type: AuditEventStart, Command: Command{Binary: bin}}) }
	complete := func(code int, d time.Duration) {
		m.Record(AuditEvent{Type: AuditEventComplete, Result: &ExecutionResult{Success: true, ExitCode: code, Duration: d}})
	}

	start("go")
	complete(0, 2*time.Second)
	start("go")
	complete(1, time.Second)
	start("python3")
	m.Record(AuditEvent{Type: AuditEventKilled, Result: &ExecutionResult{Duration: 3 * time.Second}})
	m.Record(AuditEvent{Type: AuditEventBlocked})
	m.Record(AuditEvent{Type: AuditEventError})

	snap := m.Snapshot()
	if snap.Total != 3 {
		t.Errorf("Total = %d, want 3", snap.Total)
	}
	if snap.Succeeded != 1 || snap.NonZeroExits != 1 || snap.Killed != 1 || snap.Errors != 1 || snap.Blocked != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
	if snap.TotalDuration != 6*time.Second {
		t.Errorf("TotalDuration = %v, want 6s", snap.TotalDuration)
	}
	if snap.AvgDuration != 1500*time.Millisecond {
		t.Errorf("AvgDuration = %v, want 1.5s", snap.AvgDuration)
	}
	if snap.SuccessRate != 0.25 {
		t.Errorf("SuccessRate = %v, want 0.25", snap.SuccessRate)
	}
	if snap.ByBinary["go"] != 2 || snap.ByBinary["python3"] != 1 {
		t.Errorf("ByBinary = %v", snap.ByBinary)
	}

	m.Reset()
	if snap := m.Snapshot(); snap.Total != 0 || len(snap.ByBinary) != 0 {
		t.Errorf("Reset left %+v", snap)
	}
}

func TestAuditLogger_CallbacksAndFile(t *testing.T) {
	l := NewAuditLogger()
	path := filepath.Join(t.TempDir(), "audit", "sandbox.jsonl")
	if err := l.EnableFileLogging(path); err != nil {
		t.Fatalf("EnableFileLogging: %v", err)
	}

	var seen int
	l.AddCallback(func(AuditEvent) { seen++ })

	l.Log(AuditEvent{Type: AuditEventStart, Command: Command{Binary: "ls"}})
	l.Log(AuditEvent{Type: AuditEventComplete, Result: &ExecutionResult{Success: true}})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if seen != 2 {
		t.Errorf("callback saw %d events, want 2", seen)
	}
	if got := l.Metrics().Snapshot().Succeeded; got != 1 {
		t.Errorf("Succeeded = %d, want 1", got)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	var types []AuditEventType
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad audit line %q: %v", scanner.Text(), err)
		}
		types = append(types, e.Type)
	}
	if len(types) != 2 || types[0] != AuditEventStart || types[1] != AuditEventComplete {
		t.Errorf("audit file types = %v", types)
	}
}

func TestAuditLogger_FileFailuresAreLogged(t *testing.T) {
	ws := t.TempDir()
	if err := logging.Initialize(ws, logging.Options{DebugMode: true}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() {
		logging.Configure(logging.Options{})
		logging.CloseAll()
	})

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	readOnly, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	l := NewAuditLogger()
	l.file = readOnly
	defer l.Close()

	l.Log(AuditEvent{Type: AuditEventStart, Command: Command{Binary: "ls"}})
	l.Log(AuditEvent{Type: AuditEventStart, Command: Command{Binary: "ls", Limits: &ResourceLimits{CPUs: math.NaN()}}})
	if got := l.Metrics().Snapshot().Total; got != 2 {
		t.Errorf("Total = %d, want 2; metrics must not depend on the file", got)
	}
	logging.CloseAll()

	data, err := os.ReadFile(filepath.Join(ws, ".autoeng", "logs", "sandbox.log"))
	if err != nil {
		t.Fatalf("read sandbox log: %v", err)
	}
	for _, want := range []string{"audit: write to " + path + " failed", "audit: cannot encode start event"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("sandbox log missing %q:\n%s", want, data)
		}
	}
}

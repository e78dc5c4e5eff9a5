package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/timedilation/internal/config"
	"github.com/nvandessel/timedilation/internal/store"
)

// isolateHome sets HOME to a temp directory to avoid touching real ~/.tdsim/
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCmd()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeConfig saves a small two-run configuration writing into outDir.
func writeConfig(t *testing.T, dir, outDir string, distances ...float64) string {
	t.Helper()
	cfg := config.Default()
	cfg.Run.Events = 2000
	cfg.Run.DistancesM = distances
	cfg.Output.Dir = outDir
	cfg.Output.Formats = []string{store.FormatCSV, store.FormatArrow, store.FormatSQLite}
	path := filepath.Join(dir, "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

func TestNewRootCmd(t *testing.T) {
	rootCmd := newRootCmd()
	want := []string{"version", "simulate", "validate", "expect", "config", "mcp-server"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	for _, flag := range []string{"json", "config", "log-level"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	isolateHome(t, t.TempDir())
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "tdsim version "+version) {
		t.Errorf("unexpected output %q", out)
	}

	out, err = execute(t, "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if v["version"] != version {
		t.Errorf("expected version %q, got %q", version, v["version"])
	}
}

func TestSimulateThenValidate(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	outDir := filepath.Join(tmpDir, "out")
	cfgPath := writeConfig(t, tmpDir, outDir, 0, 15)

	out, err := execute(t, "simulate", "--config", cfgPath, "--seed", "5")
	if err != nil {
		t.Fatalf("simulate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Wrote 2 run(s)") {
		t.Errorf("unexpected simulate output:\n%s", out)
	}
	for _, name := range []string{"TimeDilation_Run0.csv", "TimeDilation_Run1.csv", "TimeDilation_Run1.arrow", store.DBFileName} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	for _, extra := range [][]string{nil, {"--format", "arrow"}, {"--db"}} {
		args := append([]string{"validate", "--config", cfgPath, "--json"}, extra...)
		out, err := execute(t, args...)
		if err != nil {
			t.Fatalf("validate %v failed: %v\n%s", extra, err, out)
		}
		var report ValidationReport
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if !report.Passed || len(report.Runs) != 2 {
			t.Errorf("validate %v: expected 2 passing runs, got %+v", extra, report)
		}
		if report.Input != outDir {
			t.Errorf("expected input %s, got %s", outDir, report.Input)
		}
	}
}

func TestValidate_WrongDistanceFails(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	outDir := filepath.Join(tmpDir, "out")
	cfgPath := writeConfig(t, tmpDir, outDir, 0, 15)

	if _, err := execute(t, "simulate", "--config", cfgPath); err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	// Claim the second run was taken at 1 m: kaon survival at 15 m cannot match.
	wrongDir := filepath.Join(tmpDir, "wrong")
	if err := os.MkdirAll(wrongDir, 0700); err != nil {
		t.Fatal(err)
	}
	wrongCfg := writeConfig(t, wrongDir, outDir, 0, 1)

	out, err := execute(t, "validate", "--config", wrongCfg)
	if err == nil {
		t.Fatalf("expected validation failure, got:\n%s", out)
	}
	if !strings.Contains(out, "kaon survival") {
		t.Errorf("expected kaon problem in output:\n%s", out)
	}
}

func TestValidate_NoRuns(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	if _, err := execute(t, "validate", "--input", tmpDir); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := execute(t, "validate", "--input", tmpDir, "--format", "parquet"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestSimulate_InvalidFlags(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	tests := []struct {
		name  string
		args  []string
		param string
	}{
		{"negative events", []string{"--events", "-1"}, "run.events"},
		{"negative distance", []string{"--distances", "5,-2"}, "run.distances_m"},
		{"unknown format", []string{"--format", "parquet"}, "output.formats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"simulate", "--out", filepath.Join(tmpDir, "out")}, tt.args...)
			_, err := execute(t, args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.param) {
				t.Errorf("error %q does not name %s", err, tt.param)
			}
		})
	}
}

func TestExpectCmd(t *testing.T) {
	isolateHome(t, t.TempDir())

	out, err := execute(t, "expect", "--json", "--momentum", "4", "--distances", "0,10")
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Momentum float64   `json:"momentum"`
		Flights  []float64 `json:"flights_cm"`
		Species  []struct {
			Species  string    `json:"species"`
			Survival []float64 `json:"survival"`
		} `json:"species"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Momentum != 4 {
		t.Errorf("expected momentum 4, got %v", got.Momentum)
	}
	if len(got.Flights) != 2 || got.Flights[0] != 50 || got.Flights[1] != 1050 {
		t.Errorf("unexpected flights %v", got.Flights)
	}
	if len(got.Species) != 3 || len(got.Species[0].Survival) != 2 {
		t.Errorf("unexpected species %+v", got.Species)
	}

	out, err = execute(t, "expect")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"pion", "kaon", "muon", "lambda(cm)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	if _, err := execute(t, "expect", "--momentum", "-1"); err == nil {
		t.Error("expected error for negative momentum")
	}
}

func TestConfigInitAndList(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	path := filepath.Join(tmpDir, "cfg", "config.yaml")

	if _, err := execute(t, "config", "init", "--config", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := execute(t, "config", "init", "--config", path); err == nil {
		t.Error("expected error when the file already exists")
	}
	if _, err := execute(t, "config", "init", "--config", path, "--force"); err != nil {
		t.Errorf("config init --force failed: %v", err)
	}

	t.Setenv("TDSIM_RUN_EVENTS", "1234")
	out, err := execute(t, "config", "list", "--config", path, "--json")
	if err != nil {
		t.Fatal(err)
	}
	var cfg config.TdsimConfig
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if cfg.Run.Events != 1234 {
		t.Errorf("expected env override 1234, got %d", cfg.Run.Events)
	}

	out, err = execute(t, "config", "list", "--config", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "distances_m:") {
		t.Errorf("expected YAML output, got:\n%s", out)
	}
}

func TestConfig_MissingExplicitFile(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	if _, err := execute(t, "config", "list", "--config", filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateDB_UsesStoredDistances(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	outDir := filepath.Join(tmpDir, "out")
	cfgPath := writeConfig(t, tmpDir, outDir, 0, 15)

	if _, err := execute(t, "simulate", "--config", cfgPath, "--seed", "5"); err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	// The configured list disagrees with the simulated one; the database
	// records the true distance of every run.
	otherDir := filepath.Join(tmpDir, "other")
	if err := os.MkdirAll(otherDir, 0700); err != nil {
		t.Fatal(err)
	}
	otherCfg := writeConfig(t, otherDir, outDir, 0, 1)

	out, err := execute(t, "validate", "--config", otherCfg, "--db", "--json")
	if err != nil {
		t.Fatalf("validate --db failed: %v\n%s", err, out)
	}
	var report ValidationReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(report.Runs) != 2 || report.Runs[1].DistanceM != 15 {
		t.Errorf("expected run 1 validated at 15 m, got %+v", report.Runs)
	}
}

func TestValidateDB_MissingDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	input := filepath.Join(tmpDir, "absent")

	if _, err := execute(t, "validate", "--input", input, "--db"); err == nil {
		t.Fatal("expected error for missing database")
	}
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Errorf("validate created %s (stat err = %v)", input, err)
	}
}

func TestNewMCPServer(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeConfig(t, tmpDir, filepath.Join(tmpDir, "out"), 0, 15)
	auditDir := filepath.Join(tmpDir, "audit")

	cmd, _, err := newRootCmd().Find([]string{"mcp-server"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if err := cmd.ParseFlags([]string{"--config", cfgPath, "--audit-dir", auditDir}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	server, err := newMCPServer(cmd)
	if err != nil {
		t.Fatalf("newMCPServer: %v", err)
	}
	defer server.Close()

	if _, err := os.Stat(filepath.Join(auditDir, "audit.jsonl")); err != nil {
		t.Errorf("expected audit log: %v", err)
	}
}

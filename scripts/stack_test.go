package scripts

import (
	"bytes"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func runStack(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command("bash", append([]string{stackScriptPath(t)}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func TestStackUpDryRun(t *testing.T) {
	out, errOut, err := runStack(t, "up", "--dry-run")
	if err != nil {
		t.Fatalf("stack up --dry-run error = %v\nstderr:\n%s", err, errOut)
	}
	for _, token := range []string{
		"[dry-run] docker compose -f",
		"deployments/docker-compose.yml up -d --wait",
		"[dry-run] cd",
		"[dry-run] nohup env",
		"go run ./cmd/querychat-api",
		"stack is up",
	} {
		if !strings.Contains(out, token) {
			t.Fatalf("output missing %q\noutput:\n%s", token, out)
		}
	}
	if strings.Index(out, "docker compose") > strings.Index(out, "nohup env") {
		t.Fatalf("api started before compose services:\n%s", out)
	}
}

func TestStackDownDryRun(t *testing.T) {
	out, errOut, err := runStack(t, "down", "--dry-run")
	if err != nil {
		t.Fatalf("stack down --dry-run error = %v\nstderr:\n%s", err, errOut)
	}
	for _, token := range []string{"[dry-run] cd", "[dry-run] docker compose", "stack is down"} {
		if !strings.Contains(out, token) {
			t.Fatalf("output missing %q\noutput:\n%s", token, out)
		}
	}
}

func TestStackRejectsUnknownInput(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"restart"}, want: "unknown command"},
		{args: []string{"up", "--force"}, want: "unknown argument"},
	}
	for _, tt := range tests {
		_, errOut, err := runStack(t, tt.args...)
		if err == nil {
			t.Fatalf("%v: expected non-zero exit", tt.args)
		}
		if !strings.Contains(errOut, tt.want) {
			t.Fatalf("%v: stderr missing %q:\n%s", tt.args, tt.want, errOut)
		}
	}
}

func stackScriptPath(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Join(filepath.Dir(thisFile), "stack.sh")
}

package chcommon

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfigYAML(t *testing.T) {
	reg, err := LoadConfig("testdata/policies.yaml")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if got := strings.Join(reg.Names(), ","); got != "clickhouse,keeper" {
		t.Fatalf("Names() = %q, want clickhouse,keeper", got)
	}

	ch, ok := reg.Policy("clickhouse")
	if !ok {
		t.Fatal("Policy(clickhouse) not found")
	}
	if ch.MaxAttempts() != 5 || ch.BaseDelay() != 500*time.Millisecond || ch.MaxDelay() != 5*time.Second {
		t.Fatalf("clickhouse = (%d, %v, %v)", ch.MaxAttempts(), ch.BaseDelay(), ch.MaxDelay())
	}
	if !ch.Jitter() {
		t.Fatal("clickhouse jitter = false, want true")
	}
	if ch.IsRetryable(Classify(KindServer, errors.New("500"))) {
		t.Fatal("clickhouse retry_on [connection] must not retry server errors")
	}
	if !ch.IsRetryable(Classify(KindConnection, errors.New("refused"))) {
		t.Fatal("clickhouse must retry connection errors")
	}
	if reg.Timeout("clickhouse") != time.Minute {
		t.Fatalf("Timeout(clickhouse) = %v, want 1m", reg.Timeout("clickhouse"))
	}
	if len(reg.ExecuteOptions("clickhouse")) != 1 {
		t.Fatal("ExecuteOptions(clickhouse) should carry the timeout")
	}

	keeper, _ := reg.Policy("keeper")
	if got := keeper.NextDelay(3); got != 600*time.Millisecond {
		t.Fatalf("keeper linear NextDelay(3) = %v, want 600ms", got)
	}
	if reg.ExecuteOptions("keeper") != nil {
		t.Fatal("keeper has no timeout")
	}

	if reg.Render().MissingVariables != "relaxed" {
		t.Fatalf("render.missing_variables = %q", reg.Render().MissingVariables)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	reg, err := LoadConfig("testdata/policies.json")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	p := reg.PolicyOr("metadata-api", nil)
	if p == nil {
		t.Fatal("metadata-api not loaded")
	}
	if !p.IsRetryable(Classify(KindThrottled, errors.New("429"))) {
		t.Fatal("throttled should be retryable")
	}
	if reg.PolicyOr("missing", NoRetry()) != NoRetry() {
		t.Fatal("PolicyOr should return the fallback for unknown names")
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := LoadConfig("testdata/nonexistent.yaml")
	if err == nil || !strings.Contains(err.Error(), "chcommon: read config") {
		t.Fatalf("error = %v, want read config error", err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name, file, body, want string
	}{
		{"malformed json", "c.json", `{"policies": `, "chcommon: parse config"},
		{"malformed yaml", "c.yaml", "policies: [\n", "chcommon: parse config"},
		{"bad duration", "c.yaml", "policies:\n  a:\n    base_delay: soon\n", `policy "a": base_delay`},
		{"bad backoff", "c.yaml", "policies:\n  a:\n    backoff: fibonacci\n", "unknown strategy"},
		{"invalid attempts", "c.yaml", "policies:\n  a:\n    max_attempts: 0\n", "invalid retry policy"},
		{"negative timeout", "c.yaml", "policies:\n  a:\n    timeout: -1s\n", "negative duration"},
		{"bad render policy", "c.yaml", "render:\n  missing_variables: lenient\n", "missing_variables"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestParseConfigExtension(t *testing.T) {
	body := []byte("policies:\n  q:\n    max_attempts: 4\n")

	for _, ext := range []string{".yaml", "yml", ".YML"} {
		reg, err := ParseConfig(body, ext)
		if err != nil {
			t.Fatalf("ParseConfig(%q) error = %v", ext, err)
		}

		if p, ok := reg.Policy("q"); !ok || p.MaxAttempts() != 4 {
			t.Fatalf("ParseConfig(%q) policy q = %v, %v", ext, p, ok)
		}
	}

	if _, err := ParseConfig(body, ".json"); err == nil {
		t.Fatal("ParseConfig(.json) on YAML input succeeded")
	}
}

func TestBuildPolicyEmptyUsesDefaults(t *testing.T) {
	p, err := BuildPolicy(&PolicyConfig{})
	if err != nil {
		t.Fatalf("BuildPolicy() error = %v", err)
	}
	if p.MaxAttempts() != DefaultMaxAttempts {
		t.Fatalf("MaxAttempts() = %d", p.MaxAttempts())
	}
}

func TestParseConfigMaxDelayWithoutBase(t *testing.T) {
	body := []byte("policies:\n  fast:\n    max_delay: 50ms\n  steps:\n    max_delay: 50ms\n    backoff: linear\n")

	reg, err := ParseConfig(body, ".yaml")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	fast, _ := reg.Policy("fast")
	if fast.BaseDelay() != 50*time.Millisecond {
		t.Fatalf("fast BaseDelay() = %v, want 50ms", fast.BaseDelay())
	}

	steps, _ := reg.Policy("steps")
	if got := steps.NextDelay(1); got != 50*time.Millisecond {
		t.Fatalf("steps NextDelay(1) = %v, want 50ms", got)
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", StandardHTTP(), time.Second)
	reg.Register("a", NoRetry(), 0)

	p, _ := reg.Policy("a")
	if p.MaxAttempts() != 1 || reg.Timeout("a") != 0 {
		t.Fatalf("replacement not applied: attempts=%d timeout=%v", p.MaxAttempts(), reg.Timeout("a"))
	}
}

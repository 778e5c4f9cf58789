package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "")
	fc, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Retry.MaxAttempts != 3 || fc.Retry.Backoff != 2*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", fc.Retry)
	}
	if fc.GitHub.TokenFile != DefaultTokenFile || fc.GitHub.BaseURL != DefaultBaseURL {
		t.Fatalf("unexpected github defaults: %+v", fc.GitHub)
	}
	if fc.GitHub.Timeout != 30*time.Second {
		t.Fatalf("timeout default: %v", fc.GitHub.Timeout)
	}
	if fc.Scoop.UpdateTries != 5 || fc.Schedule.Every != time.Hour {
		t.Fatalf("unexpected defaults: %+v %+v", fc.Scoop, fc.Schedule)
	}
}

func TestLoad_FullTOML(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "swupdate.toml", `
[github]
repository = "acme/fleet"
issue = 42
token_file = "/etc/swupdate/token"
timeout = "10s"

[retry]
max_attempts = 5
backoff = "500ms"

[log]
level = "debug"
format = "json"
dir = "/tmp/swlogs"

[history]
dsn = ["sqlite://:memory:", "opensearch://localhost:9200/update-history"]

[schedule]
every = "6h"

[apt]
reboot = true
reboot_delay = "1m"

[scoop]
restart_running = true

[store]
listen = ":9090"
dsn = "postgres://u:p@db/issues"
token = "s3cret"

[store.tls]
enabled = true
dir = "/etc/swupdate/tls"
auto_generate = true
dns_names = ["store.internal"]
`)
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.GitHub.Repository != "acme/fleet" || fc.GitHub.Issue != 42 || fc.GitHub.Timeout != 10*time.Second {
		t.Fatalf("github: %+v", fc.GitHub)
	}
	if fc.Retry.MaxAttempts != 5 || fc.Retry.Backoff != 500*time.Millisecond {
		t.Fatalf("retry: %+v", fc.Retry)
	}
	if len(fc.History.DSNs) != 2 {
		t.Fatalf("history: %+v", fc.History)
	}
	if !fc.Apt.Reboot || fc.Apt.RebootDelay != time.Minute || !fc.Scoop.RestartRunning {
		t.Fatalf("workers: %+v %+v", fc.Apt, fc.Scoop)
	}
	if fc.Schedule.Every != 6*time.Hour || fc.Store.Listen != ":9090" || fc.Store.Token != "s3cret" {
		t.Fatalf("schedule/store: %+v %+v", fc.Schedule, fc.Store)
	}
	if tc := fc.Store.TLS; !tc.Enabled || !tc.AutoGenerate || tc.Dir != "/etc/swupdate/tls" || len(tc.DNSNames) != 1 {
		t.Fatalf("store tls: %+v", tc)
	}
	lc := fc.LoggerConfig()
	if lc.File.Dir != "/tmp/swlogs" || string(lc.Slog.Format) != "json" {
		t.Fatalf("logger config: %+v", lc)
	}
	if err := fc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "c.toml", "[github]\nrepository = \"file/repo\"\nissue = 1\n")
	t.Setenv("SWUPDATE_GITHUB_ISSUE", "7")
	t.Setenv("SWUPDATE_RETRY_MAX_ATTEMPTS", "9")
	t.Setenv("GITHUB_REPOSITORY", "env/repo")

	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.GitHub.Issue != 7 || fc.Retry.MaxAttempts != 9 {
		t.Fatalf("env overrides ignored: %+v %+v", fc.GitHub, fc.Retry)
	}
	if fc.GitHub.Repository != "env/repo" {
		t.Fatalf("GITHUB_REPOSITORY ignored: %q", fc.GitHub.Repository)
	}
}

func TestLoad_EnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, "extra.env", "SWUPDATE_GITHUB_TOKEN=from-env-file\n")
	file := writeFile(t, dir, "c.toml", "env_files = [\""+filepath.ToSlash(envFile)+"\"]\n")
	t.Setenv("SWUPDATE_GITHUB_TOKEN", "")
	_ = os.Unsetenv("SWUPDATE_GITHUB_TOKEN")

	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tok, err := fc.ResolveToken()
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if tok != "from-env-file" {
		t.Fatalf("token = %q", tok)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	fc := &FileConfig{GitHub: GitHubConfig{Repository: "no-slash"}, Retry: RetryConfig{MaxAttempts: 0, Backoff: -1}}
	err := fc.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"owner/name", "issue", "max_attempts", "backoff"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadToken(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "token.txt", "  ghp_abc \n")
	tok, err := LoadToken(p)
	if err != nil || tok != "ghp_abc" {
		t.Fatalf("LoadToken = %q, %v", tok, err)
	}
	empty := writeFile(t, dir, "empty.txt", "\n")
	if _, err := LoadToken(empty); err == nil {
		t.Fatal("expected error for empty token file")
	}
	if _, err := LoadToken(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing token file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "SWUPDATE_DOTENV_A=base\nSWUPDATE_DOTENV_B=base\n")
	writeFile(t, dir, ".env.local", "SWUPDATE_DOTENV_B=local\nSWUPDATE_DOTENV_C=local\n")
	for _, k := range []string{"SWUPDATE_DOTENV_A", "SWUPDATE_DOTENV_B", "SWUPDATE_DOTENV_C"} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}

	LoadDotEnv(dir)
	// .env is loaded first and never overwritten
	if os.Getenv("SWUPDATE_DOTENV_A") != "base" || os.Getenv("SWUPDATE_DOTENV_B") != "base" || os.Getenv("SWUPDATE_DOTENV_C") != "local" {
		t.Fatalf("unexpected env: A=%q B=%q C=%q", os.Getenv("SWUPDATE_DOTENV_A"), os.Getenv("SWUPDATE_DOTENV_B"), os.Getenv("SWUPDATE_DOTENV_C"))
	}
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/swupdate"
	"github.com/loykin/swupdate/internal/logger"
	"github.com/loykin/swupdate/internal/worker"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(logger.EnvLogDir, t.TempDir())
	var out, errOut bytes.Buffer
	root := buildRoot(&command{out: &out, errOut: &errOut})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTOML(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return p
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "swupdate dev\n", out)
}

func TestRun_InvalidIssueNumber(t *testing.T) {
	_, err := execute(t, "--env-dir", t.TempDir(), "run", "12a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid issue number")
}

func TestRun_MissingRepository(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "")
	_, err := execute(t, "--env-dir", t.TempDir(), "run", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github.repository")
}

func TestRun_TooManyArgs(t *testing.T) {
	_, err := execute(t, "run", "1", "2")
	assert.Error(t, err)
}

func TestEOL(t *testing.T) {
	out, err := execute(t, "eol")
	require.NoError(t, err)
	assert.Contains(t, out, `"eol"`)
	assert.Contains(t, out, `"machine"`)
}

func TestRowsAgainstIssueStore(t *testing.T) {
	ctx := context.Background()
	st, err := swupdate.OpenIssueStore(ctx, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	srv := httptest.NewServer(swupdate.IssueStoreHandler(st, "", "", slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)

	host, err := worker.Hostname()
	require.NoError(t, err)
	body := "| Status | Computer | OS | PM | Upgraded | Failed |\n| --- | --- | --- | --- | --- | --- |\n" +
		fmt.Sprintf("|  | me | Linux | apt |  |  | <!-- update-softwares#%s#apt -->\n", host) +
		"|  | other | Windows | scoop |  |  | <!-- update-softwares#zz-other#scoop -->\n"
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/repos/acme/fleet/issues/5", strings.NewReader(fmt.Sprintf(`{"body":%q}`, body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dir := t.TempDir()
	cfg := writeTOML(t, dir, "swupdate.toml", fmt.Sprintf(`
[github]
repository = "acme/fleet"
issue = 5
token = "unused"
base_url = %q
`, srv.URL))

	out, err := execute(t, "--config", cfg, "--env-dir", dir, "rows")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], host)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[1]), "*"))
	assert.Contains(t, lines[2], "zz-other")
}

func TestApplyRunFlags(t *testing.T) {
	c, err := swupdate.LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, applyRunFlags(c, RunFlags{Issue: "42", Repository: "acme/fleet"}))
	assert.Equal(t, 42, c.GitHub.Issue)
	assert.Equal(t, "acme/fleet", c.GitHub.Repository)
	assert.Error(t, applyRunFlags(c, RunFlags{Issue: "-1"}))
}

package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filesync/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "filesync", cmd.Use)
	assert.Contains(t, cmd.Long, "FILESYNC_")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"fetch", "sync", "cleanup", "run", "inspect", "bootstrap", "branches", "payers"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("branches"))
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	retries := runCmd.Flags().Lookup("retries")
	require.NotNil(t, retries)
	assert.Equal(t, "0", retries.DefValue)

	delay := runCmd.Flags().Lookup("retry-delay")
	require.NotNil(t, delay)
	assert.Equal(t, "5m0s", delay.DefValue)
}

// fileService fakes the remote file service: one listing endpoint per
// branch and a download endpoint serving files base64-encoded.
type fileService struct {
	mu    sync.Mutex
	files map[string]string
	calls int
}

func (s *fileService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	switch r.URL.Path {
	case "/svc/GetUnviewedFiles":
		var sb strings.Builder
		sb.WriteString("<fileList>")
		for _, name := range slices.Sorted(maps.Keys(s.files)) {
			fmt.Fprintf(&sb, "<file>%s</file>", name)
		}
		sb.WriteString("</fileList>")
		fmt.Fprintf(w, `<string xmlns="http://tempuri.org/">%s</string>`, html.EscapeString(sb.String()))
	case "/svc/GetFileByName":
		body, ok := s.files[r.URL.Query().Get("filename")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `<base64Binary xmlns="http://tempuri.org/">%s</base64Binary>`,
			base64.StdEncoding.EncodeToString([]byte(body)))
	case "/svc/GetPayerIDs":
		fmt.Fprint(w, `<string xmlns="http://tempuri.org/">&lt;Payers&gt;&lt;Payer&gt;&lt;Name&gt;Acme Health&lt;/Name&gt;&lt;PayerID&gt;P-1&lt;/PayerID&gt;&lt;/Payer&gt;&lt;/Payers&gt;</string>`)
	case "/svc/GetUnviewedERAMFiles":
		fmt.Fprint(w, `<string xmlns="http://tempuri.org/">Invalid username or password</string>`)
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	svc     *fileService
	values  config.Values
	archive string
	root    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	svc := &fileService{files: map[string]string{
		"claims-001.txt": "Claim 001 paid",
		"claims-002.txt": "Claim 002 denied",
	}}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env := &testEnv{
		svc:     svc,
		archive: filepath.Join(dir, "archive"),
		root:    filepath.Join(dir, "downloads"),
	}
	env.values = config.Values{
		config.KeySourceBaseURL:  srv.URL + "/svc/",
		config.KeySourceUsername: "clinic",
		config.KeySourcePassword: "s3cret",
		config.KeyStoreKind:      config.StoreDir,
		config.KeyStoreDir:       env.archive,
		config.KeyWarehouseDSN:   filepath.Join(dir, "warehouse.db"),
		config.KeyDownloadRoot:   env.root,
		config.KeyScratchDir:     filepath.Join(dir, "scratch"),
	}
	return env
}

// execute runs the CLI against the environment's configuration.
func (env *testEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := env.executeWithStderr(t, args...)
	return out, err
}

func (env *testEnv) executeWithStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{Provider: env.values})
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

type runOutput struct {
	Status string `json:"status"`
	Data   []struct {
		Branch string `json:"branch"`
		Error  string `json:"error"`
		Report struct {
			Fetch struct {
				Downloaded int `json:"downloaded"`
			} `json:"fetch"`
			Sync struct {
				Rows       int            `json:"rows"`
				Uploaded   int            `json:"uploaded"`
				Classified map[string]int `json:"classified"`
			} `json:"sync"`
			Removed int `json:"removed"`
		} `json:"report"`
	} `json:"data"`
}

type inspectOutput struct {
	Data struct {
		Consistent bool `json:"consistent"`
		Inspection struct {
			Raw struct {
				Rows    int64    `json:"rows"`
				Columns []string `json:"columns"`
			} `json:"raw"`
			History struct {
				Rows int64 `json:"rows"`
			} `json:"history"`
		} `json:"inspection"`
	} `json:"data"`
}

func TestRun_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "run", "unviewed_files", "--format", "json")
	require.NoError(t, err)

	var first runOutput
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	require.Len(t, first.Data, 1)
	res := first.Data[0]
	assert.Equal(t, "unviewed_files", res.Branch)
	assert.Empty(t, res.Error)
	assert.Equal(t, 2, res.Report.Fetch.Downloaded)
	assert.Equal(t, 2, res.Report.Sync.Rows)
	assert.Equal(t, 2, res.Report.Sync.Uploaded)
	assert.Equal(t, 2, res.Report.Sync.Classified["new"])
	assert.Equal(t, 2, res.Report.Removed)

	archived, err := os.ReadFile(filepath.Join(env.archive, "unviewed_files", "claims-001.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Claim 001 paid", string(archived))

	// Second run: one file unchanged, one rewritten.
	env.svc.files["claims-002.txt"] = "Claim 002 approved"
	out, err = env.execute(t, "run", "unviewed_files", "--format", "json")
	require.NoError(t, err)

	var second runOutput
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	require.Len(t, second.Data, 1)
	assert.Equal(t, 1, second.Data[0].Report.Sync.Classified["unchanged"])
	assert.Equal(t, 1, second.Data[0].Report.Sync.Classified["modified"])
	assert.Equal(t, 1, second.Data[0].Report.Sync.Uploaded)

	out, err = env.execute(t, "inspect", "unviewed_files", "--format", "json")
	require.NoError(t, err)

	var in inspectOutput
	require.NoError(t, json.Unmarshal([]byte(out), &in))
	assert.True(t, in.Data.Consistent)
	assert.Equal(t, int64(2), in.Data.Inspection.Raw.Rows)
	assert.Equal(t, int64(4), in.Data.Inspection.History.Rows)
	assert.Equal(t, []string{"DATE", "FILE_NAME", "FILE_EXISTS_IN_S3", "CONTENTS_MODIFIED", "MODIFIED_FILE_NAME"},
		in.Data.Inspection.Raw.Columns)
}

func TestRun_ExportsMetrics(t *testing.T) {
	env := newTestEnv(t)

	_, stderr, err := env.executeWithStderr(t, "run", "unviewed_files", "--metrics")
	require.NoError(t, err)
	for _, name := range []string{
		"filesync.artifacts.fetched",
		"filesync.artifacts.classified",
		"filesync.rows.loaded",
	} {
		assert.Contains(t, stderr, name)
	}
}

func TestRun_MetricsOffByDefault(t *testing.T) {
	env := newTestEnv(t)

	_, stderr, err := env.executeWithStderr(t, "run", "unviewed_files")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "filesync.rows.loaded")
}

func TestRun_BranchFailureDoesNotStopOthers(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "run", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "unviewed_eram_files")

	var res runOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Data, 2)
	assert.Equal(t, "unviewed_files", res.Data[0].Branch)
	assert.Empty(t, res.Data[0].Error)
	assert.Equal(t, 2, res.Data[0].Report.Sync.Rows)
	assert.Equal(t, "unviewed_eram_files", res.Data[1].Branch)
	assert.Contains(t, res.Data[1].Error, "Invalid username or password")
}

func TestRun_RefusalIsNotRetried(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.execute(t, "run", "unviewed_eram_files", "--retries", "3", "--retry-delay", "1h")
	require.Error(t, err)
	assert.Equal(t, 1, env.svc.calls)
}

func TestRun_NegativeRetries(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.execute(t, "run", "--retries", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_MissingConfiguration(t *testing.T) {
	cmd := newRootCommand(&RootOptions{Provider: config.Values{}})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), config.KeySourceUsername)
	assert.Contains(t, err.Error(), config.KeyWarehouseDSN)
}

func TestRun_UnknownBranch(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.execute(t, "run", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown branch "nope"`)
	assert.Equal(t, 0, env.svc.calls)
}

func TestFetchThenCleanup(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "fetch", "unviewed_files")
	require.NoError(t, err)
	assert.Equal(t, "unviewed_files: listed 2, downloaded 2, failed 0\n", out)

	require.NoError(t, os.WriteFile(filepath.Join(env.root, "unviewed_files", "summary.csv"), []byte("x"), 0o644))

	out, err = env.execute(t, "cleanup", "unviewed_files")
	require.NoError(t, err)
	assert.Equal(t, "unviewed_files: removed 2 files\n", out)

	entries, err := os.ReadDir(filepath.Join(env.root, "unviewed_files"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "summary.csv", entries[0].Name())
}

func TestSync_WithoutDownloads(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "sync", "unviewed_files", "--format", "json")
	require.NoError(t, err)

	var res runOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, 0, env.svc.calls)
}

func TestBootstrap(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "bootstrap")
	require.NoError(t, err)
	assert.Equal(t, "schemas ready (sqlite): [STAGING RAW HISTORY]\n", out)

	// Running it again is a no-op.
	_, err = env.execute(t, "bootstrap")
	require.NoError(t, err)
}

func TestInspect_BeforeAnyLoad(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "inspect", "unviewed_eram_files")
	require.NoError(t, err)
	assert.Contains(t, out, "unviewed_eram_files (UNVIEWED_ERAM_FILES)")
	assert.Contains(t, out, "inconsistent")
}

func TestBranches(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "branches")
	require.NoError(t, err)
	assert.Contains(t, out, "unviewed_files: endpoint=GetUnviewedFiles prefix=unviewed_files dir=unviewed_files table=UNVIEWED_FILES")
	assert.Contains(t, out, "unviewed_eram_files: endpoint=GetUnviewedERAMFiles")
}

func TestBranches_FromFile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "branches.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`branches:
  - name: remits
    endpoint: GetUnviewedFiles
    prefix: remits
    dir: remits
    table: REMITS
`), 0o644))

	out, err := env.execute(t, "branches", "--branches", path)
	require.NoError(t, err)
	assert.Equal(t, "remits: endpoint=GetUnviewedFiles prefix=remits dir=remits table=REMITS\n", out)
}

func TestPayers(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "payers", "1")
	require.NoError(t, err)
	assert.Equal(t, "P-1\tAcme Health\n", out)
}

func TestInvalidFormat(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.execute(t, "branches", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExecute_ReportsErrors(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := Execute(context.Background(), []string{"branches", "--format", "json", "--branches", filepath.Join(t.TempDir(), "missing.yaml")}, stdout, stderr)
	assert.Equal(t, ExitCommandError, code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
}

func TestRetry_StopsAfterSuccess(t *testing.T) {
	calls := 0
	v, err := retry(context.Background(), 3, time.Millisecond, discardLogger(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("transient %d", calls)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), 2, time.Millisecond, discardLogger(), func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("still down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry(ctx, 5, time.Hour, discardLogger(), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, fmt.Errorf("down")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

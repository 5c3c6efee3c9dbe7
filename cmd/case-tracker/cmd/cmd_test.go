package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-case-tracker/internal/models"
)

// syncBuffer is shared by logrus and the live status writer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// resetFlags restores every flag of the tree to its default between runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCommand executes the root command in process.
func runCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr syncBuffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// testEnv is a temp data directory with a fast-timing config file.
func testEnv(t *testing.T, baseURL string) []string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	content := `LogLevel = "debug"
FetchAttempts = 1

[Upload]
TotalMs = 20
IntervalMs = 5

[Form]
SettleDelayMs = 0
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return []string{"--config", cfgPath, "--data-path", filepath.Join(dir, "data"), "--base-url", baseURL}
}

type caseServer struct {
	mu        sync.Mutex
	cases     []models.Case
	nextID    int
	posts     []map[string]string
	deletes   int
	deleteErr int
	files     map[string][]byte
}

func newCaseServer(t *testing.T, cases ...models.Case) (*caseServer, *httptest.Server) {
	t.Helper()
	s := &caseServer{cases: cases, nextID: 100}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *caseServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.files[r.URL.Path]; ok && r.Method == http.MethodGet {
		_, _ = w.Write(data)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/casos")
	switch {
	case r.Method == http.MethodGet && rest == "":
		_ = json.NewEncoder(w).Encode(models.CaseList{Cases: s.cases})
	case r.Method == http.MethodGet:
		id, _ := strconv.Atoi(strings.TrimPrefix(rest, "/"))
		for _, c := range s.cases {
			if c.ID == id {
				_ = json.NewEncoder(w).Encode(c)
				return
			}
		}
		http.Error(w, "not found", http.StatusNotFound)
	case r.Method == http.MethodPost && rest == "":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fields := map[string]string{"caso": r.FormValue("caso"), "desc": r.FormValue("desc")}
		for _, name := range []string{"img", "ifc"} {
			if _, hdr, err := r.FormFile(name); err == nil {
				fields[name] = hdr.Filename
			}
		}
		s.posts = append(s.posts, fields)
		c := models.Case{ID: s.nextID, Name: fields["caso"], Description: fields["desc"]}
		s.nextID++
		s.cases = append(s.cases, c)
		_ = json.NewEncoder(w).Encode(c)
	case r.Method == http.MethodDelete:
		s.deletes++
		if s.deleteErr != 0 {
			http.Error(w, "boom", s.deleteErr)
			return
		}
		id, _ := strconv.Atoi(strings.TrimPrefix(rest, "/"))
		kept := s.cases[:0]
		for _, c := range s.cases {
			if c.ID != id {
				kept = append(kept, c)
			}
		}
		s.cases = kept
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unexpected", http.StatusMethodNotAllowed)
	}
}

func TestConfigShow_TOML(t *testing.T) {
	env := testEnv(t, "http://cases.test:8000")
	stdout, _, err := runCommand(t, "", append(env, "config", "show")...)
	require.NoError(t, err)

	assert.Contains(t, stdout, `BaseURL = "http://cases.test:8000"`)
	assert.Contains(t, stdout, "[Upload]")
	assert.Contains(t, stdout, "TotalMs = 20")
}

func TestConfigShow_FetchAttemptsFlag(t *testing.T) {
	env := testEnv(t, "http://cases.test:8000")
	stdout, _, err := runCommand(t, "", append(env, "--fetch-attempts", "5", "config", "show")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "FetchAttempts = 5")

	stdout, _, err = runCommand(t, "", append(env, "config", "show")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "FetchAttempts = 1", "the config file value applies without the flag")
}

func TestConfigShow_InvalidBaseURL(t *testing.T) {
	env := testEnv(t, "ftp://cases.test")
	_, _, err := runCommand(t, "", append(env, "config", "show")...)
	assert.Error(t, err)
}

func TestList_LiveThenCached(t *testing.T) {
	_, srv := newCaseServer(t,
		models.Case{ID: 1, Name: "Torre Norte", Progress: 50},
		models.Case{ID: 2, Name: "Ponte", Description: "concreto"},
	)
	env := testEnv(t, srv.URL)

	stdout, stderr, err := runCommand(t, "", append(env, "list")...)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "Casos: 2")
	assert.Contains(t, stdout, "Torre Norte")
	assert.Contains(t, stdout, "50%")

	srv.Close()
	stdout, stderr, err = runCommand(t, "", append(env, "list", "--cached")...)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "Snapshot from")
	assert.Contains(t, stdout, "Ponte")
}

func TestList_JSON(t *testing.T) {
	_, srv := newCaseServer(t, models.Case{ID: 3, Name: "Viaduto"})
	env := testEnv(t, srv.URL)

	stdout, _, err := runCommand(t, "", append(env, "list", "--json")...)
	require.NoError(t, err)

	var list models.CaseList
	require.NoError(t, json.Unmarshal([]byte(stdout), &list))
	require.Len(t, list.Cases, 1)
	assert.Equal(t, "Viaduto", list.Cases[0].Name)
}

func TestCreate_SendsMultipartAndJournals(t *testing.T) {
	server, srv := newCaseServer(t)
	env := testEnv(t, srv.URL)

	dir := t.TempDir()
	img := filepath.Join(dir, "foto.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG\r\n\x1a\nfake"), 0o600))
	ifc := filepath.Join(dir, "torre.ifc")
	require.NoError(t, os.WriteFile(ifc, []byte("ISO-10303-21;"), 0o600))

	stdout, stderr, err := runCommand(t, "", append(env, "create", "--name", "Torre", "--desc", "metalica", "--image", img, "--model", ifc)...)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "Caso 100 criado: Torre")

	server.mu.Lock()
	require.Len(t, server.posts, 1)
	assert.Equal(t, map[string]string{"caso": "Torre", "desc": "metalica", "img": "foto.png", "ifc": "torre.ifc"}, server.posts[0])
	server.mu.Unlock()

	stdout, _, err = runCommand(t, "", append(env, "journal", "list", "--json")...)
	require.NoError(t, err)
	var entries []models.JournalEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpCreate, entries[0].Operation)
	assert.Equal(t, models.StatusDone, entries[0].Status)
	assert.NotEmpty(t, entries[0].ImageHash)
}

func TestCreate_RejectsWrongAttachment(t *testing.T) {
	server, srv := newCaseServer(t)
	env := testEnv(t, srv.URL)

	notIFC := filepath.Join(t.TempDir(), "planta.dwg")
	require.NoError(t, os.WriteFile(notIFC, []byte("x"), 0o600))

	_, _, err := runCommand(t, "", append(env, "create", "--name", "X", "--model", notIFC)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Por favor, selecione apenas arquivos IFC.")

	server.mu.Lock()
	assert.Empty(t, server.posts)
	server.mu.Unlock()
}

func TestDelete_ConfirmationPrompt(t *testing.T) {
	server, srv := newCaseServer(t, models.Case{ID: 7, Name: "Galpao"})
	env := testEnv(t, srv.URL)

	stdout, _, err := runCommand(t, "n\n", append(env, "delete", "7")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Cancelado.")

	stdout, _, err = runCommand(t, "y\n", append(env, "delete", "7")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Caso 7 excluído.")

	server.mu.Lock()
	assert.Equal(t, 1, server.deletes)
	assert.Empty(t, server.cases)
	server.mu.Unlock()
}

func TestDelete_ServerErrorIsReported(t *testing.T) {
	server, srv := newCaseServer(t, models.Case{ID: 7, Name: "Galpao"})
	server.deleteErr = http.StatusInternalServerError
	env := testEnv(t, srv.URL)

	_, _, err := runCommand(t, "", append(env, "delete", "7", "--force")...)
	require.Error(t, err)
	assert.Equal(t, "Delete failed: 500 Internal Server Error — boom", err.Error())
}

func TestSearch_RefreshesIndex(t *testing.T) {
	_, srv := newCaseServer(t,
		models.Case{ID: 1, Name: "Torre Norte"},
		models.Case{ID: 2, Name: "Ponte"},
	)
	env := testEnv(t, srv.URL)

	stdout, stderr, err := runCommand(t, "", append(env, "search", "torre")...)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "Torre Norte")
	assert.NotContains(t, stdout, "Ponte")
}

func TestConfirmDeletion(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirmDeletion(strings.NewReader("y\n"), &out, "A"))
	assert.True(t, confirmDeletion(strings.NewReader("YES\n"), &out, "A"))
	assert.False(t, confirmDeletion(strings.NewReader("\n"), &out, "A"))
	assert.False(t, confirmDeletion(strings.NewReader(""), &out, "A"))
	assert.Contains(t, out.String(), `"A"`)
}

func TestAttachments_DownloadsIntoPattern(t *testing.T) {
	img, ifc := "uploads/foto.png", "/uploads/torre.ifc"
	server, srv := newCaseServer(t, models.Case{ID: 5, Name: "Torre Norte", ImageRef: &img, ModelRef: &ifc})
	server.files = map[string][]byte{
		"/uploads/foto.png":  []byte("\x89PNG\r\n\x1a\nfake"),
		"/uploads/torre.ifc": []byte("ISO-10303-21;"),
	}
	env := testEnv(t, srv.URL)
	out := t.TempDir()

	stdout, stderr, err := runCommand(t, "", append(env, "attachments", "5", "--out", out)...)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "blake3")

	data, err := os.ReadFile(filepath.Join(out, "5-torre_norte", "torre.ifc"))
	require.NoError(t, err)
	assert.Equal(t, "ISO-10303-21;", string(data))
	assert.FileExists(t, filepath.Join(out, "5-torre_norte", "foto.png"))

	stdout, _, err = runCommand(t, "", append(env, "attachments", "5", "--out", out)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "já existe")
}

func TestAttachments_NoAttachments(t *testing.T) {
	_, srv := newCaseServer(t, models.Case{ID: 6, Name: "Ponte"})
	env := testEnv(t, srv.URL)

	stdout, _, err := runCommand(t, "", append(env, "attachments", "6", "--out", t.TempDir())...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Caso 6 não possui anexos.")
}

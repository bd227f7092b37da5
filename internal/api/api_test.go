package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/othala/internal/extract"
	"github.com/starford/othala/internal/fileops"
	"github.com/starford/othala/internal/match"
	"github.com/starford/othala/internal/organizer"
	"github.com/starford/othala/internal/rules"
	"github.com/starford/othala/internal/sse"
	"github.com/starford/othala/internal/testutil"
	"github.com/starford/othala/internal/watch"
)

type apiEnv struct {
	router  http.Handler
	store   *rules.DB
	inbox   string
	archive string
}

// testEnv builds a real store, pipeline, and router around temp directories.
// authToken == "" runs in disabled auth mode.
func testEnv(t *testing.T, authToken string) *apiEnv {
	t.Helper()

	store, embedder := testutil.TestStore(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	extractor := extract.New()
	mover := fileops.New(store, logger)
	t.Cleanup(mover.Close)
	watcher := watch.New(extractor, func(string) {}, logger)
	t.Cleanup(watcher.Stop)

	org := organizer.New(store, extractor, match.New(embedder, logger), mover, watcher, noopPublisher{}, logger)

	env := &apiEnv{
		store:   store,
		inbox:   t.TempDir(),
		archive: t.TempDir(),
	}
	settings := &rules.Settings{InboxPath: env.inbox, ArchivePath: env.archive}
	if err := store.SetSettings(context.Background(), settings); err != nil {
		t.Fatal(err)
	}

	env.router = NewRouter(org, store, authToken != "", authToken, nil)
	return env
}

type noopPublisher struct{}

func (noopPublisher) Publish(_ sse.Event)        {}
func (noopPublisher) PublishState(_ interface{}) {}

func (e *apiEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAuth(t *testing.T) {
	e := testEnv(t, "secret")

	if rec := e.do(t, http.MethodGet, "/status", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/status", nil, "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/status", nil, "secret"); rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestRulesCRUD(t *testing.T) {
	e := testEnv(t, "")

	rec := e.do(t, http.MethodPost, "/rules", SaveRuleRequest{
		Name:        "Invoices",
		Keywords:    []string{"invoice", "receipt"},
		Destination: "Finance/Invoices",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body = %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[rules.Rule](t, rec)
	if created.ID == "" || !created.Active {
		t.Fatalf("created = %+v", created)
	}

	rec = e.do(t, http.MethodGet, "/rules", nil, "")
	list := decodeBody[RuleListResponse](t, rec)
	if list.Total != 1 || list.Rules[0].Name != "Invoices" {
		t.Fatalf("list = %+v", list)
	}

	rec = e.do(t, http.MethodPut, "/rules/"+created.ID, SaveRuleRequest{
		Name:        "Invoices",
		Keywords:    []string{"invoice"},
		Destination: "Finance",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d body = %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[rules.Rule](t, rec)
	if updated.Destination != "Finance" || len(updated.Keywords) != 1 {
		t.Fatalf("updated = %+v", updated)
	}

	if rec = e.do(t, http.MethodDelete, "/rules/"+created.ID, nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if rec = e.do(t, http.MethodGet, "/rules/"+created.ID, nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: status = %d", rec.Code)
	}
}

func TestCreateRule_Validation(t *testing.T) {
	e := testEnv(t, "")

	// Missing destination.
	rec := e.do(t, http.MethodPost, "/rules", SaveRuleRequest{Name: "X", Keywords: []string{"a"}}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	// No keywords and no description.
	rec = e.do(t, http.MethodPost, "/rules", SaveRuleRequest{Name: "X", Destination: "Y"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	// Description alone is enough.
	rec = e.do(t, http.MethodPost, "/rules", SaveRuleRequest{Name: "X", Description: "tax documents", Destination: "Y"}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	e := testEnv(t, "")

	next := SettingsRequest{InboxPath: t.TempDir(), ArchivePath: t.TempDir(), MonitoringEnabled: false}
	if rec := e.do(t, http.MethodPut, "/settings", next, ""); rec.Code != http.StatusOK {
		t.Fatalf("put: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec := e.do(t, http.MethodGet, "/settings", nil, "")
	got := decodeBody[rules.Settings](t, rec)
	if got.InboxPath != next.InboxPath || got.ArchivePath != next.ArchivePath {
		t.Fatalf("settings = %+v", got)
	}
}

func TestProcessAndUndo(t *testing.T) {
	e := testEnv(t, "")
	e.do(t, http.MethodPost, "/rules", SaveRuleRequest{
		Name:        "Invoices",
		Keywords:    []string{"invoice"},
		Destination: "Finance",
	}, "")

	path := filepath.Join(e.inbox, "invoice_42.txt")
	if err := os.WriteFile(path, []byte("invoice body"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := e.do(t, http.MethodPost, "/process", ProcessRequest{Path: path}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("process: status = %d body = %s", rec.Code, rec.Body.String())
	}
	op := decodeBody[fileops.FileOperation](t, rec)
	if op.DestinationPath != filepath.Join(e.archive, "Finance", "invoice_42.txt") {
		t.Fatalf("op = %+v", op)
	}

	rec = e.do(t, http.MethodGet, "/operations", nil, "")
	ops := decodeBody[OperationListResponse](t, rec)
	if len(ops.Operations) != 1 {
		t.Fatalf("operations = %+v", ops)
	}

	rec = e.do(t, http.MethodGet, "/moves", nil, "")
	moves := decodeBody[MoveListResponse](t, rec)
	if len(moves.Moves) != 1 || moves.Moves[0].Status != rules.StatusSuccess {
		t.Fatalf("moves = %+v", moves)
	}

	if rec = e.do(t, http.MethodPost, "/operations/undo", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("undo: status = %d body = %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("file not restored to inbox")
	}
	if rec = e.do(t, http.MethodPost, "/operations/undo", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second undo: status = %d", rec.Code)
	}
}

func TestProcess_NoMatch(t *testing.T) {
	e := testEnv(t, "")
	e.do(t, http.MethodPost, "/rules", SaveRuleRequest{
		Name:        "Invoices",
		Keywords:    []string{"invoice"},
		Destination: "Finance",
	}, "")

	path := filepath.Join(e.inbox, "vacation.txt")
	if err := os.WriteFile(path, []byte("beach photos"), 0o644); err != nil {
		t.Fatal(err)
	}

	if rec := e.do(t, http.MethodPost, "/process", ProcessRequest{Path: path}, ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("unmatched file was moved")
	}
}

func TestProcess_MissingFile(t *testing.T) {
	e := testEnv(t, "")
	if rec := e.do(t, http.MethodPost, "/process", ProcessRequest{Path: filepath.Join(e.inbox, "ghost.txt")}, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestUpload(t *testing.T) {
	e := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "dropped.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("uploaded body")); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	body, err := os.ReadFile(filepath.Join(e.inbox, "dropped.txt"))
	if err != nil || string(body) != "uploaded body" {
		t.Fatalf("uploaded file = %q, %v", body, err)
	}
}

func TestUpload_DoesNotOverwriteExisting(t *testing.T) {
	e := testEnv(t, "")

	existing := filepath.Join(e.inbox, "dropped.txt")
	if err := os.WriteFile(existing, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "dropped.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("new upload")); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	body, err := os.ReadFile(existing)
	if err != nil || string(body) != "keep me" {
		t.Fatalf("existing file = %q, %v, want untouched", body, err)
	}
	suffixed, err := os.ReadFile(filepath.Join(e.inbox, "dropped (1).txt"))
	if err != nil || string(suffixed) != "new upload" {
		t.Fatalf("suffixed upload = %q, %v", suffixed, err)
	}
}

func TestSafeName(t *testing.T) {
	inbox := t.TempDir()

	if _, err := safeName(inbox, "plain.txt"); err != nil {
		t.Fatalf("plain name rejected: %v", err)
	}
	for _, bad := range []string{"", "../escape.txt", "sub/dir.txt", ".."} {
		if _, err := safeName(inbox, bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}

package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfchat/pdfchat/internal/core"
	"github.com/pdfchat/pdfchat/internal/store"
	"go.uber.org/zap/zaptest"
)

type stubCompleter struct {
	prompt string
	err    error
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return "stub answer", nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type stubExtractor struct {
	pages []string
	err   error
}

func (s *stubExtractor) ExtractPages(ctx context.Context, path string) ([]string, error) {
	return s.pages, s.err
}

type testApp struct {
	server    *httptest.Server
	client    *http.Client
	db        *store.SQLiteStore
	completer *stubCompleter
	extractor *stubExtractor
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	db, err := store.NewSQLiteStore(filepath.Join(dir, "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	docs := store.NewDocumentStore(filepath.Join(dir, "index"))
	comp := &stubCompleter{}
	ex := &stubExtractor{pages: []string{"Document text about Go."}}
	ingest := core.NewIngestService(ex, stubEmbedder{}, docs, core.DefaultChunkSize, logger)
	rag := core.NewRAGService(docs, stubEmbedder{}, comp, core.DefaultTopK, logger)
	chat := core.NewChatService(db, ingest, rag, filepath.Join(dir, "uploads"), "default", logger)

	srv := httptest.NewServer(NewRouter(NewHandler(chat, logger)))
	t.Cleanup(srv.Close)

	return &testApp{
		server: srv,
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		db:        db,
		completer: comp,
		extractor: ex,
	}
}

func (a *testApp) postChat(t *testing.T, fields map[string]string, fileName, fileBody string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(fileBody))
	}
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, a.server.URL+"/chat", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := a.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func (a *testApp) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := a.client.Get(a.server.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.String()
}

func TestIndexCreatesConversation(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/?cid=abc")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `value="abc"`) {
		t.Fatal("page should carry the conversation id in the form")
	}
	conv, _ := app.db.GetConversation(context.Background(), "abc")
	if conv == nil {
		t.Fatal("conversation should be created on page view")
	}
}

func TestChatWithoutDocumentRedirects(t *testing.T) {
	app := newTestApp(t)

	resp := app.postChat(t, map[string]string{"conversation_id": "abc", "query": "What is X?"}, "", "")
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/?cid=abc" {
		t.Fatalf("unexpected redirect %q", loc)
	}
	if app.completer.prompt != "What is X?" {
		t.Fatalf("expected plain prompt, got %q", app.completer.prompt)
	}

	_, body := app.get(t, "/?cid=abc")
	if !strings.Contains(body, "What is X?") || !strings.Contains(body, "stub answer") {
		t.Fatal("page should show both messages")
	}
}

func TestChatUploadThenAnswer(t *testing.T) {
	app := newTestApp(t)

	resp := app.postChat(t, map[string]string{"conversation_id": "abc", "query": "Tell me about Go"}, "guide.pdf", "%PDF-1.4")
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if !strings.Contains(app.completer.prompt, "Answer ONLY from the context below.") {
		t.Fatalf("answer should use the freshly ingested document, prompt %q", app.completer.prompt)
	}

	_, body := app.get(t, "/?cid=abc")
	if !strings.Contains(body, "Document ready: guide.pdf") {
		t.Fatal("page should report the ready document")
	}
}

func TestChatUploadErrorIsRendered(t *testing.T) {
	app := newTestApp(t)
	app.extractor.err = errFake("cannot read pdf")

	resp := app.postChat(t, map[string]string{"conversation_id": "abc"}, "bad.pdf", "junk")
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("upload failure must not fail the request, got %d", resp.StatusCode)
	}

	_, body := app.get(t, "/?cid=abc")
	if !strings.Contains(body, "cannot read pdf") {
		t.Fatal("page should show the upload error")
	}
}

func TestChatModelFailureIs500(t *testing.T) {
	app := newTestApp(t)
	app.completer.err = errFake("model down")

	resp := app.postChat(t, map[string]string{"conversation_id": "abc", "query": "hi"}, "", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestChatAcceptsURLEncodedForm(t *testing.T) {
	app := newTestApp(t)

	form := url.Values{"conversation_id": {"abc"}, "query": {"hello"}}
	resp, err := app.client.PostForm(app.server.URL+"/chat", form)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	msgs, _ := app.db.ListMessages(context.Background(), "abc")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestNewRedirectsToFreshConversation(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.get(t, "/new")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, "/?cid=") || len(loc) <= len("/?cid=") {
		t.Fatalf("unexpected redirect %q", loc)
	}

	resp2, _ := app.get(t, "/new")
	if resp2.Header.Get("Location") == loc {
		t.Fatal("each /new should generate a different id")
	}
}

func TestDeleteRedirectsToNew(t *testing.T) {
	app := newTestApp(t)
	app.postChat(t, map[string]string{"conversation_id": "abc", "query": "hi"}, "", "")

	resp, _ := app.get(t, "/delete/abc")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/new" {
		t.Fatalf("unexpected redirect %q", loc)
	}

	msgs, _ := app.db.ListMessages(context.Background(), "abc")
	if len(msgs) != 0 {
		t.Fatalf("expected no messages after delete, got %d", len(msgs))
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/health")
	if resp.StatusCode != http.StatusOK || body != `{"status":"ok"}` {
		t.Fatalf("unexpected health response %d %q", resp.StatusCode, body)
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }

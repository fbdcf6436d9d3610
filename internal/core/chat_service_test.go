package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfchat/pdfchat/internal/store"
	"go.uber.org/zap/zaptest"
)

type chatFixture struct {
	svc       *ChatService
	db        *store.SQLiteStore
	docs      *store.DocumentStore
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	completer *fakeCompleter
	uploadDir string
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	dir := t.TempDir()
	db, err := store.NewSQLiteStore(filepath.Join(dir, "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t)
	f := &chatFixture{
		db:        db,
		docs:      store.NewDocumentStore(filepath.Join(dir, "index")),
		extractor: &fakeExtractor{pages: []string{"The answer is 42."}},
		embedder:  &fakeEmbedder{},
		completer: &fakeCompleter{answer: "42"},
		uploadDir: filepath.Join(dir, "uploads"),
	}
	ingest := NewIngestService(f.extractor, f.embedder, f.docs, DefaultChunkSize, logger)
	rag := NewRAGService(f.docs, f.embedder, f.completer, DefaultTopK, logger)
	f.svc = NewChatService(db, ingest, rag, f.uploadDir, "default", logger)
	return f
}

func TestOpenConversationCreatesLazily(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	page, err := f.svc.OpenConversation(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if page.ConversationID != "abc" || len(page.Messages) != 0 || page.Upload != nil {
		t.Fatalf("unexpected fresh page: %+v", page)
	}
	// Empty conversations are not listed.
	if len(page.Conversations) != 0 {
		t.Fatalf("expected no listed conversations, got %d", len(page.Conversations))
	}

	conv, _ := f.db.GetConversation(ctx, "abc")
	if conv == nil {
		t.Fatal("conversation should exist after opening")
	}
}

func TestAskStoresBothMessages(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Ask(ctx, "abc", "What is X?")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Role != store.RoleAssistant || msg.Content != "42" {
		t.Fatalf("unexpected answer message: %+v", msg)
	}

	page, err := f.svc.OpenConversation(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page.Messages))
	}
	if len(page.Conversations) != 1 || page.Conversations[0].Title != "What is X?" {
		t.Fatalf("expected titled conversation in list, got %+v", page.Conversations)
	}
}

func TestAskFailureKeepsUserMessage(t *testing.T) {
	for _, modelErr := range []error{errBoom, ErrEmptyCompletion} {
		t.Run(modelErr.Error(), func(t *testing.T) {
			f := newChatFixture(t)
			f.completer.err = modelErr
			ctx := context.Background()

			if _, err := f.svc.Ask(ctx, "abc", "hello"); !errors.Is(err, modelErr) {
				t.Fatalf("expected %v, got %v", modelErr, err)
			}
			msgs, _ := f.db.ListMessages(ctx, "abc")
			if len(msgs) != 1 || msgs[0].Role != store.RoleUser {
				t.Fatalf("expected only the user message, got %+v", msgs)
			}
		})
	}
}

func TestUploadThenAskUsesDocument(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.svc.EnsureConversation(ctx, "abc")

	res := f.svc.Upload(ctx, "abc", "../../report.pdf", strings.NewReader("%PDF-fake"))
	if !res.OK() {
		t.Fatalf("upload failed: %v", res.Err)
	}
	if res.DocName != "report.pdf" {
		t.Fatalf("expected base name, got %q", res.DocName)
	}
	if _, err := os.Stat(filepath.Join(f.uploadDir, "report.pdf")); err != nil {
		t.Fatalf("upload not saved under upload dir: %v", err)
	}

	st, err := f.db.GetUploadStatus(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if st == nil || st.Status != store.DocStatusReady || st.DocName != "report.pdf" {
		t.Fatalf("expected ready status, got %+v", st)
	}

	if _, err := f.svc.Ask(ctx, "abc", "What is the answer?"); err != nil {
		t.Fatal(err)
	}
	prompt := f.completer.lastPrompt()
	if !strings.Contains(prompt, "Answer ONLY from the context below.") || !strings.Contains(prompt, "The answer is 42.") {
		t.Fatalf("expected grounded prompt, got %q", prompt)
	}
}

func TestUploadFailureIsRecorded(t *testing.T) {
	f := newChatFixture(t)
	f.extractor.err = errors.New("bad pdf")
	ctx := context.Background()
	f.svc.EnsureConversation(ctx, "abc")
	f.svc.Ask(ctx, "abc", "before upload")

	res := f.svc.Upload(ctx, "abc", "broken.pdf", strings.NewReader("garbage"))
	if res.OK() {
		t.Fatal("expected failure")
	}

	st, _ := f.db.GetUploadStatus(ctx, "abc")
	if st.Status != store.DocStatusError || st.Error != "bad pdf" {
		t.Fatalf("expected error status, got %+v", st)
	}

	msgs, _ := f.db.ListMessages(ctx, "abc")
	if len(msgs) != 2 {
		t.Fatalf("conversation should be unaffected, got %d messages", len(msgs))
	}
}

func TestUploadStatusIsPerConversation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.svc.EnsureConversation(ctx, "one")
	f.svc.EnsureConversation(ctx, "two")

	f.svc.Upload(ctx, "one", "doc.pdf", strings.NewReader("x"))

	page, err := f.svc.OpenConversation(ctx, "two")
	if err != nil {
		t.Fatal(err)
	}
	if page.Upload != nil {
		t.Fatalf("conversation two should have no upload status, got %+v", page.Upload)
	}
}

func TestDeleteConversation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.svc.Ask(ctx, "abc", "hello")

	if err := f.svc.DeleteConversation(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	msgs, err := f.db.ListMessages(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty history after delete, got %d", len(msgs))
	}
}

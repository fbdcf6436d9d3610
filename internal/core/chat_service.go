package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfchat/pdfchat/internal/store"
	"go.uber.org/zap"
)

type ChatService struct {
	dbStore      *store.SQLiteStore
	ingest       *IngestService
	rag          *RAGService
	uploadDir    string
	collectionID string
	logger       *zap.Logger
}

func NewChatService(db *store.SQLiteStore, ingest *IngestService, rag *RAGService, uploadDir, collectionID string, logger *zap.Logger) *ChatService {
	return &ChatService{
		dbStore:      db,
		ingest:       ingest,
		rag:          rag,
		uploadDir:    uploadDir,
		collectionID: collectionID,
		logger:       logger,
	}
}

// ChatPage is everything the chat page shows for one conversation.
type ChatPage struct {
	ConversationID string
	Messages       []store.Message
	Conversations  []store.Conversation
	Upload         *store.UploadStatus
}

// OpenConversation creates the conversation if needed and loads its page.
func (s *ChatService) OpenConversation(ctx context.Context, conversationID string) (*ChatPage, error) {
	if err := s.dbStore.CreateConversationIfNotExists(ctx, conversationID); err != nil {
		return nil, err
	}

	messages, err := s.dbStore.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	conversations, err := s.dbStore.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	upload, err := s.dbStore.GetUploadStatus(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	return &ChatPage{
		ConversationID: conversationID,
		Messages:       messages,
		Conversations:  conversations,
		Upload:         upload,
	}, nil
}

func (s *ChatService) EnsureConversation(ctx context.Context, conversationID string) error {
	return s.dbStore.CreateConversationIfNotExists(ctx, conversationID)
}

// Upload saves the file and ingests it into the document collection. Every
// failure is reported through the result and recorded as the conversation's
// upload status.
func (s *ChatService) Upload(ctx context.Context, conversationID, filename string, content io.Reader) IngestResult {
	name := filepath.Base(filename)
	s.recordUpload(ctx, store.UploadStatus{ConversationID: conversationID, Status: store.DocStatusUploading, DocName: name})

	var result IngestResult
	path, err := s.saveUpload(name, content)
	if err != nil {
		result = IngestResult{Status: store.DocStatusError, DocName: name, Err: err}
	} else {
		result = s.ingest.Ingest(ctx, s.collectionID, path, name)
	}

	status := store.UploadStatus{ConversationID: conversationID, Status: result.Status, DocName: name}
	if result.Err != nil {
		status.Error = result.Err.Error()
	}
	s.recordUpload(ctx, status)
	return result
}

func (s *ChatService) saveUpload(name string, content io.Reader) (string, error) {
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid upload filename %q", name)
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	path := filepath.Join(s.uploadDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

func (s *ChatService) recordUpload(ctx context.Context, status store.UploadStatus) {
	if err := s.dbStore.SetUploadStatus(ctx, status); err != nil {
		s.logger.Error("Failed to record upload status",
			zap.String("conversation", status.ConversationID),
			zap.String("status", string(status.Status)),
			zap.Error(err))
	}
}

// Ask stores the user's query, answers it and stores the answer. If answering
// fails the user message stays and the error is returned.
func (s *ChatService) Ask(ctx context.Context, conversationID, query string) (*store.Message, error) {
	if err := s.dbStore.CreateConversationIfNotExists(ctx, conversationID); err != nil {
		return nil, err
	}
	if _, err := s.dbStore.AppendMessage(ctx, conversationID, store.RoleUser, query); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	answer, err := s.rag.Answer(ctx, s.collectionID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to answer query: %w", err)
	}

	msg, err := s.dbStore.AppendMessage(ctx, conversationID, store.RoleAssistant, answer)
	if err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}
	return msg, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, conversationID string) error {
	return s.dbStore.DeleteConversation(ctx, conversationID)
}

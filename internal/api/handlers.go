package api

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pdfchat/pdfchat/internal/core"
	"go.uber.org/zap"
)

// maxUploadMemory is how much of a multipart body is buffered in memory;
// the rest spills to temp files.
const maxUploadMemory = 32 << 20

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type Handler struct {
	chatService *core.ChatService
	logger      *zap.Logger
}

func NewHandler(cs *core.ChatService, logger *zap.Logger) *Handler {
	return &Handler{chatService: cs, logger: logger}
}

func chatURL(cid string) string {
	return "/?cid=" + url.QueryEscape(cid)
}

func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	cid := r.URL.Query().Get("cid")
	if cid == "" {
		cid = uuid.NewString()
	}

	page, err := h.chatService.OpenConversation(r.Context(), cid)
	if err != nil {
		h.logger.Error("Failed to load conversation", zap.String("cid", cid), zap.Error(err))
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, page); err != nil {
		h.logger.Error("Failed to render page", zap.String("cid", cid), zap.Error(err))
	}
}

// ChatHandler ingests an optional upload, then answers an optional query,
// then sends the browser back to the conversation.
func (h *Handler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && err != http.ErrNotMultipart {
		http.Error(w, "Invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	ctx := r.Context()
	cid := r.FormValue("conversation_id")
	if cid == "" {
		cid = uuid.NewString()
	}
	if err := h.chatService.EnsureConversation(ctx, cid); err != nil {
		h.logger.Error("Failed to create conversation", zap.String("cid", cid), zap.Error(err))
		http.Error(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		if header.Filename != "" {
			res := h.chatService.Upload(ctx, cid, header.Filename, file)
			if !res.OK() {
				h.logger.Warn("Upload failed", zap.String("cid", cid), zap.String("doc", res.DocName), zap.Error(res.Err))
			}
		}
	case err == http.ErrMissingFile, err == http.ErrNotMultipart:
	default:
		http.Error(w, "Invalid upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	if query := r.FormValue("query"); query != "" {
		if _, err := h.chatService.Ask(ctx, cid, query); err != nil {
			h.logger.Error("Failed to answer query", zap.String("cid", cid), zap.Error(err))
			http.Error(w, "Failed to answer query", http.StatusInternalServerError)
			return
		}
	}

	http.Redirect(w, r, chatURL(cid), http.StatusSeeOther)
}

func (h *Handler) NewChatHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, chatURL(uuid.NewString()), http.StatusFound)
}

func (h *Handler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")

	if err := h.chatService.DeleteConversation(r.Context(), cid); err != nil {
		h.logger.Error("Failed to delete conversation", zap.String("cid", cid), zap.Error(err))
		http.Error(w, "Failed to delete conversation", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/new", http.StatusFound)
}

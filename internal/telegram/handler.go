package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"nexuslog/internal/category"
	"nexuslog/internal/extractor"
	"nexuslog/internal/ingest"
)

const (
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	maxUpdateBytes = 1 << 20

	startText = "🧠 Welcome to NexusLog!\n\n" +
		"I'm your AI-powered idea logger. Send me:\n" +
		"- 📝 Text messages\n" +
		"- 🖼️ Images\n" +
		"- 🎤 Voice notes\n" +
		"- 🎥 Videos\n" +
		"- 🔗 Links\n\n" +
		"I'll process, categorize, and store everything for you!\n\n" +
		"Use /help to see all commands."

	helpText = "📚 NexusLog Commands:\n\n" +
		"/start - Start the bot\n" +
		"/help - Show this help message\n" +
		"/categories - List categories\n\n" +
		"💡 How to use:\n" +
		"- Just send me any content!\n" +
		"- Add \"content idea\" to mark as content\n" +
		"- Specify output types: \"blog\", \"youtube\", \"linkedin\", \"shorts\", \"reels\"\n" +
		"- Example: \"content idea for blog and youtube: How to build AI apps\"\n\n" +
		"I'll automatically categorize and process everything! 🚀"

	unknownContentText = "🤔 I don't know how to handle this type of content yet."
	pdfWarningText     = "⚠️ I mainly support PDF documents right now. I'll try to save this anyway."
)

type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
	SendVoice(ctx context.Context, chatID int64, audio []byte, caption string) error
}

type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) ingest.Result
}

type CategoryTree interface {
	Tree(ctx context.Context) ([]category.Node, error)
}

// Speaker synthesizes a spoken confirmation; an empty result means none.
type Speaker interface {
	Speak(ctx context.Context, text string) []byte
}

type HandlerConfig struct {
	Messenger  Messenger
	Ingester   Ingester
	Categories CategoryTree
	// Speaker and Deduper are optional.
	Speaker Speaker
	Deduper Deduper
	// SecretToken, when set, must match the webhook secret header.
	SecretToken string
	// AllowedChatIDs restricts the bot to these chats when non-empty.
	AllowedChatIDs []int64
	Logger         *slog.Logger
}

type Handler struct {
	messenger  Messenger
	ingester   Ingester
	categories CategoryTree
	speaker    Speaker
	deduper    Deduper
	secret     string
	allowed    []int64
	logger     *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		messenger:  cfg.Messenger,
		ingester:   cfg.Ingester,
		categories: cfg.Categories,
		speaker:    cfg.Speaker,
		deduper:    cfg.Deduper,
		secret:     cfg.SecretToken,
		allowed:    cfg.AllowedChatIDs,
		logger:     logger,
	}
}

// ServeHTTP accepts one webhook delivery. The update is processed before
// the response is written; Telegram redelivers on any non-2xx answer.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(h.secret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "invalid secret token"})
		return
	}

	var u Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&u); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid update payload"})
		return
	}

	ctx := r.Context()
	marked := false
	if h.deduper != nil && u.UpdateID != 0 {
		first, err := h.deduper.FirstDelivery(ctx, u.UpdateID)
		if err != nil {
			h.logger.Warn("update dedup unavailable", "update_id", u.UpdateID, "error", err)
		} else if !first {
			h.logger.Info("dropping redelivered update", "update_id", u.UpdateID)
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "duplicate": true})
			return
		}
		marked = err == nil
	}

	completed := false
	if marked {
		// Also runs when HandleUpdate panics.
		defer func() {
			if !completed {
				h.forgetUpdate(ctx, u.UpdateID)
			}
		}()
	}
	h.HandleUpdate(ctx, u)
	if err := ctx.Err(); err != nil {
		h.logger.Warn("update processing interrupted", "update_id", u.UpdateID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "update processing interrupted"})
		return
	}
	completed = true
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// forgetUpdate releases the dedup mark of an update that was not fully
// processed so Telegram's redelivery is handled again.
func (h *Handler) forgetUpdate(ctx context.Context, updateID int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.deduper.Forget(ctx, updateID); err != nil {
		h.logger.Error("failed to release update dedup mark", "update_id", updateID, "error", err)
	}
}

// HandleUpdate routes a message by its content and replies in the chat.
func (h *Handler) HandleUpdate(ctx context.Context, u Update) {
	msg := u.Message
	if msg == nil {
		h.logger.Debug("update has no message", "update_id", u.UpdateID)
		return
	}
	chatID := msg.Chat.ID
	if len(h.allowed) > 0 && !slices.Contains(h.allowed, chatID) {
		h.logger.Warn("ignoring message from chat not on allow-list", "chat_id", chatID)
		return
	}
	logger := h.logger.With("update_id", u.UpdateID, "chat_id", chatID)

	switch {
	case msg.Text != "":
		switch msg.Command() {
		case "start":
			h.reply(ctx, chatID, startText)
		case "help":
			h.reply(ctx, chatID, helpText)
		case "categories":
			h.handleCategories(ctx, chatID)
		default:
			h.reply(ctx, chatID, "🧠 Processing with AI...")
			h.ingest(ctx, chatID, ingest.Request{Kind: ingest.KindText, Text: msg.Text, Reply: replyContext(msg)}, logger)
		}
	case len(msg.Photo) > 0:
		p := msg.LargestPhoto()
		h.reply(ctx, chatID, "🖼️ Processing image...")
		h.ingestFile(ctx, chatID, msg, ingest.KindImage, &ingest.Media{
			MIMEType: "image/jpeg", FileName: "photo.jpg", FileID: p.FileID, FileUniqueID: p.FileUniqueID,
		}, logger)
	case msg.Voice != nil:
		h.reply(ctx, chatID, "🎙️ Transcribing voice note...")
		res := h.ingestFile(ctx, chatID, msg, ingest.KindAudio, &ingest.Media{
			MIMEType: orDefault(msg.Voice.MIMEType, "audio/ogg"), FileName: "voice.ogg",
			FileID: msg.Voice.FileID, FileUniqueID: msg.Voice.FileUniqueID,
		}, logger)
		h.speakConfirmation(ctx, chatID, res, logger)
	case msg.Audio != nil:
		h.reply(ctx, chatID, "🎙️ Transcribing voice note...")
		h.ingestFile(ctx, chatID, msg, ingest.KindAudio, &ingest.Media{
			MIMEType: orDefault(msg.Audio.MIMEType, "audio/mpeg"), FileName: orDefault(msg.Audio.FileName, "audio.mp3"),
			FileID: msg.Audio.FileID, FileUniqueID: msg.Audio.FileUniqueID,
		}, logger)
	case msg.Video != nil:
		h.reply(ctx, chatID, "🎬 Processing video...")
		h.ingestFile(ctx, chatID, msg, ingest.KindVideo, &ingest.Media{
			MIMEType: orDefault(msg.Video.MIMEType, "video/mp4"), FileName: "video.mp4",
			FileID: msg.Video.FileID, FileUniqueID: msg.Video.FileUniqueID,
		}, logger)
	case msg.Animation != nil:
		h.reply(ctx, chatID, "🎞️ Processing GIF...")
		h.ingestFile(ctx, chatID, msg, ingest.KindAnimation, &ingest.Media{
			MIMEType: orDefault(msg.Animation.MIMEType, "video/mp4"), FileName: orDefault(msg.Animation.FileName, "animation.mp4"),
			FileID: msg.Animation.FileID, FileUniqueID: msg.Animation.FileUniqueID,
		}, logger)
	case msg.Document != nil:
		d := msg.Document
		name := orDefault(d.FileName, "document.pdf")
		mime := orDefault(d.MIMEType, "application/pdf")
		if !isPDF(name, mime) && mime != "image/gif" && mime != "video/mp4" {
			h.reply(ctx, chatID, pdfWarningText)
		}
		h.ingestFile(ctx, chatID, msg, ingest.KindDocument, &ingest.Media{
			MIMEType: mime, FileName: name, FileID: d.FileID, FileUniqueID: d.FileUniqueID,
		}, logger)
	default:
		h.reply(ctx, chatID, unknownContentText)
	}
}

func (h *Handler) handleCategories(ctx context.Context, chatID int64) {
	nodes, err := h.categories.Tree(ctx)
	if err != nil {
		h.logger.Error("failed to list categories", "error", err)
		h.reply(ctx, chatID, "❌ Could not load categories.")
		return
	}
	h.reply(ctx, chatID, category.Format(nodes))
}

func (h *Handler) ingestFile(ctx context.Context, chatID int64, msg *Message, kind ingest.Kind, media *ingest.Media, logger *slog.Logger) ingest.Result {
	data, err := h.messenger.FetchFile(ctx, media.FileID)
	if err != nil {
		logger.Error("failed to fetch file from telegram", "kind", kind, "file_id", media.FileID, "error", err)
		h.reply(ctx, chatID, fmt.Sprintf("❌ Failed to download %s from Telegram", nounFor(kind)))
		return ingest.Result{Outcome: ingest.OutcomeFailed, Kind: kind, Err: err}
	}
	media.Data = data
	return h.ingest(ctx, chatID, ingest.Request{
		Kind:  kind,
		Text:  msg.Caption,
		Media: media,
		Reply: replyContext(msg),
	}, logger)
}

func (h *Handler) ingest(ctx context.Context, chatID int64, req ingest.Request, logger *slog.Logger) ingest.Result {
	req.Source = ingest.SourceTelegram
	res := h.ingester.Ingest(ctx, req)
	logger.Info("message ingested",
		"kind", req.Kind,
		"outcome", res.Outcome,
		"entry_id", res.EntryID,
		"items", len(res.Items),
		"duration_ms", res.Timings.Total.Milliseconds(),
	)
	if notes := ingest.NotesMessage(res.Notes); notes != "" {
		h.reply(ctx, chatID, notes)
	}
	h.reply(ctx, chatID, ingest.Confirmation(res))
	return res
}

func (h *Handler) speakConfirmation(ctx context.Context, chatID int64, res ingest.Result, logger *slog.Logger) {
	if h.speaker == nil || res.Outcome != ingest.OutcomeCreated || res.Degraded || len(res.Items) == 0 {
		return
	}
	content := []rune(res.Items[0].Content)
	if len(content) > 150 {
		content = content[:150]
	}
	audio := h.speaker.Speak(ctx, "Processed: "+string(content))
	if len(audio) == 0 {
		return
	}
	if err := h.messenger.SendVoice(ctx, chatID, audio, "🎙️ Confirmation"); err != nil {
		logger.Warn("voice confirmation failed", "error", err)
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.messenger.SendMessage(ctx, chatID, text); err != nil {
		h.logger.Error("failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

func replyContext(msg *Message) *extractor.ReplyContext {
	r := msg.ReplyToMessage
	if r == nil {
		return nil
	}
	return &extractor.ReplyContext{
		Text:        r.Body(),
		HasPhoto:    len(r.Photo) > 0,
		HasVideo:    r.Video != nil || r.Animation != nil,
		HasVoice:    r.Voice != nil || r.Audio != nil,
		HasDocument: r.Document != nil,
	}
}

func nounFor(kind ingest.Kind) string {
	switch kind {
	case ingest.KindImage:
		return "image"
	case ingest.KindAudio:
		return "audio"
	case ingest.KindVideo:
		return "video"
	case ingest.KindAnimation:
		return "GIF"
	default:
		return "document"
	}
}

func isPDF(name, mime string) bool {
	return strings.Contains(mime, "pdf") || strings.HasSuffix(strings.ToLower(name), ".pdf")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

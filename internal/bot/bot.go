// Package bot is the Telegram surface. Each chat gets its own workspace,
// so a conversation behaves like one browser visitor of the web UI.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pavelanni/sahayak/internal/backend"
	appI18n "github.com/pavelanni/sahayak/internal/i18n"
	"github.com/pavelanni/sahayak/internal/quiz"
	"github.com/pavelanni/sahayak/internal/workspace"
)

const (
	// Telegram rejects longer messages.
	maxMessageRunes = 4096

	defaultMaxFileBytes = 10 << 20
	callbackPrefix      = "q"
)

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Options configures a Bot.
type Options struct {
	// MaxFileBytes bounds document downloads.
	MaxFileBytes int64
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Bot routes Telegram updates to per-chat workspaces.
type Bot struct {
	api          API
	workspaces   *workspace.Manager
	maxFileBytes int64
	httpClient   *http.Client
	logger       *slog.Logger
}

// New creates a Bot.
func New(api API, m *workspace.Manager, opts Options) (*Bot, error) {
	if api == nil || m == nil {
		return nil, errors.New("telegram API and workspace manager are required")
	}
	b := &Bot{
		api:          api,
		workspaces:   m,
		maxFileBytes: opts.MaxFileBytes,
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
	}
	if b.maxFileBytes <= 0 {
		b.maxFileBytes = defaultMaxFileBytes
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: time.Minute}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

// Run long-polls for updates until ctx is cancelled. Updates are handled
// concurrently; a workspace serializes its own state.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate processes one update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func chatKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func withLocalizer(ctx context.Context, from *tgbotapi.User) context.Context {
	lang := ""
	if from != nil {
		lang = from.LanguageCode
	}
	return appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	ctx = withLocalizer(ctx, msg.From)
	chatID := msg.Chat.ID
	ws := b.workspaces.GetOrCreate(chatKey(chatID))

	if msg.IsCommand() {
		b.handleCommand(ctx, chatID, ws, msg.Command())
		return
	}

	if msg.Document != nil {
		b.ingestDocument(ctx, chatID, ws, msg.Document)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if link, kind, ok := findLink(text); ok {
		b.send(chatID, appI18n.T(ctx, "BotProcessing"))
		b.ingest(ctx, chatID, ws, workspace.IngestRequest{Kind: kind, URL: link})
		return
	}

	reply, err := ws.Send(ctx, text)
	if err != nil {
		if errors.Is(err, workspace.ErrNoSession) {
			b.send(chatID, appI18n.T(ctx, "BotNoSession"))
			return
		}
		b.logger.Error("chat failed", "chat_id", chatID, "error", err)
		return
	}
	b.send(chatID, reply)
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, ws *workspace.Workspace, cmd string) {
	switch cmd {
	case "start":
		b.send(chatID, appI18n.T(ctx, "BotWelcome"))
	case "help":
		b.send(chatID, appI18n.T(ctx, "BotHelp"))
	case "summary":
		if !ws.View().Active() {
			b.send(chatID, appI18n.T(ctx, "BotNoSession"))
			return
		}
		ws.RegenerateSummary(ctx)
		if v := ws.View(); v.Summary != "" {
			b.send(chatID, v.Summary)
		} else {
			b.send(chatID, appI18n.T(ctx, "BotSummaryUnavailable"))
		}
	case "quiz":
		if !ws.View().Active() {
			b.send(chatID, appI18n.T(ctx, "BotNoSession"))
			return
		}
		ws.GenerateQuiz(ctx)
		snap := ws.View().Quiz
		if snap.State != quiz.StateInProgress {
			b.send(chatID, appI18n.T(ctx, "BotQuizUnavailable"))
			return
		}
		b.send(chatID, appI18n.Tp(ctx, "QuizReady", snap.Total()))
		b.sendQuestion(ctx, chatID, snap)
	case "reset":
		ws.ResetQuiz()
		b.send(chatID, appI18n.T(ctx, "BotQuizReset"))
	case "new":
		ws.End()
		b.send(chatID, appI18n.T(ctx, "BotSessionEnded"))
	default:
		b.send(chatID, appI18n.T(ctx, "BotHelp"))
	}
}

func (b *Bot) ingestDocument(ctx context.Context, chatID int64, ws *workspace.Workspace, doc *tgbotapi.Document) {
	if int64(doc.FileSize) > b.maxFileBytes {
		b.send(chatID, appI18n.Td(ctx, "ErrorFileTooLarge", map[string]any{"MB": b.maxFileBytes >> 20}))
		return
	}
	b.send(chatID, appI18n.T(ctx, "BotProcessing"))

	data, err := b.download(ctx, doc.FileID)
	if err != nil {
		b.logger.Error("document download failed", "chat_id", chatID, "error", err)
		b.send(chatID, backend.UserMessage(err))
		return
	}
	defer data.Close()

	name := doc.FileName
	if name == "" {
		name = "document"
	}
	b.ingest(ctx, chatID, ws, workspace.IngestRequest{
		Kind:     backend.SourceDocument,
		Filename: name,
		File:     io.LimitReader(data, b.maxFileBytes),
	})
}

func (b *Bot) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	link, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (b *Bot) ingest(ctx context.Context, chatID int64, ws *workspace.Workspace, req workspace.IngestRequest) {
	if err := ws.Ingest(ctx, req); err != nil {
		b.send(chatID, backend.UserMessage(err))
		return
	}
	b.send(chatID, appI18n.T(ctx, "BotSessionStarted"))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	ctx = withLocalizer(ctx, cb.From)
	notice := ""
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, notice)); err != nil {
			b.logger.Warn("answer callback failed", "error", err)
		}
	}()

	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	index, option, ok := parseCallback(cb.Data)
	if !ok {
		return
	}
	chatID := cb.Message.Chat.ID
	ws := b.workspaces.GetOrCreate(chatKey(chatID))

	err := ws.AnswerOption(index, option)
	switch {
	case err == nil:
	case errors.Is(err, workspace.ErrStaleAnswer), errors.Is(err, quiz.ErrInvalidState):
		notice = appI18n.T(ctx, "BotStaleAnswer")
		return
	default:
		b.logger.Warn("answer rejected", "chat_id", chatID, "error", err)
		return
	}

	snap := ws.View().Quiz
	if snap.State == quiz.StateCompleted {
		b.send(chatID, resultText(ctx, snap))
		return
	}
	b.sendQuestion(ctx, chatID, snap)
}

func resultText(ctx context.Context, snap quiz.Snapshot) string {
	return appI18n.T(ctx, "QuizComplete") + " " +
		appI18n.Td(ctx, "BotScorePercent", map[string]any{"Percent": snap.Percent}) + "\n" +
		appI18n.Td(ctx, "QuizScore", map[string]any{"Score": snap.Score, "Total": snap.Total()})
}

func (b *Bot) sendQuestion(ctx context.Context, chatID int64, snap quiz.Snapshot) {
	q, ok := snap.Current()
	if !ok {
		return
	}
	text := appI18n.Td(ctx, "QuestionOf", map[string]any{"N": snap.CurrentIndex + 1, "Total": snap.Total()}) +
		"\n\n" + q.Prompt
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = questionKeyboard(snap.CurrentIndex, q)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("send question failed", "chat_id", chatID, "error", err)
	}
}

func questionKeyboard(index int, q quiz.Question) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(q.Options))
	for i, opt := range q.Options {
		button := tgbotapi.NewInlineKeyboardButtonData(quiz.OptionLabel(i)+". "+opt, callbackData(index, i))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func callbackData(index, option int) string {
	return fmt.Sprintf("%s:%d:%d", callbackPrefix, index, option)
}

func parseCallback(data string) (index, option int, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != callbackPrefix {
		return 0, 0, false
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return 0, 0, false
	}
	option, err = strconv.Atoi(parts[2])
	if err != nil || option < 0 {
		return 0, 0, false
	}
	return index, option, true
}

// send delivers text, split into as many messages as Telegram requires.
func (b *Bot) send(chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	for _, chunk := range splitMessage(text, maxMessageRunes) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			b.logger.Error("send message failed", "chat_id", chatID, "error", err)
			return
		}
	}
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if strings.TrimSpace(string(runes)) != "" || len(chunks) == 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// youTubeHosts serve videos; links to them are ingested as videos.
var youTubeHosts = map[string]bool{
	"youtube.com":     true,
	"www.youtube.com": true,
	"m.youtube.com":   true,
	"youtu.be":        true,
}

// findLink returns the first http(s) link in text and the source kind it
// should be ingested as.
func findLink(text string) (string, backend.SourceKind, bool) {
	for _, field := range strings.Fields(text) {
		field = strings.TrimLeft(strings.TrimRight(field, ".,;:!?)>\"'"), "(<\"'")
		if !strings.HasPrefix(field, "http://") && !strings.HasPrefix(field, "https://") {
			continue
		}
		u, err := url.Parse(field)
		if err != nil || u.Host == "" {
			continue
		}
		if youTubeHosts[strings.ToLower(u.Hostname())] {
			return field, backend.SourceVideo, true
		}
		return field, backend.SourcePage, true
	}
	return "", "", false
}

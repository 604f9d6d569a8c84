package serve

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"llmgram/internal/cache"
	"llmgram/internal/config"
	"llmgram/internal/dispatch"
	"llmgram/internal/llm"
	"llmgram/internal/push"
	"llmgram/internal/session"
)

// botSender is the subset of tgbotapi.BotAPI used by the message handlers,
// allowing tests to supply a fake without a live connection.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramPlatform implements Platform for Telegram.
type TelegramPlatform struct {
	cfg config.TelegramConfig
	log *logrus.Entry
}

// NewTelegramPlatform creates a new TelegramPlatform with the given config.
func NewTelegramPlatform(cfg config.TelegramConfig, log *logrus.Entry) *TelegramPlatform {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TelegramPlatform{cfg: cfg, log: log}
}

func (p *TelegramPlatform) Name() string { return "telegram" }

// NeedsSetup returns true when the bot token is missing.
func (p *TelegramPlatform) NeedsSetup() bool {
	return strings.TrimSpace(p.cfg.BotToken) == ""
}

// RunSetup runs an interactive wizard that collects and persists bot
// credentials and the user allow-list.
func (p *TelegramPlatform) RunSetup(cfg *config.Config) error {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println()
	fmt.Println("Telegram Bot Setup")
	fmt.Println("==================")
	fmt.Println()
	fmt.Println("1. Open @BotFather on Telegram → /newbot → copy the token")
	fmt.Print("   Token: ")

	if !scanner.Scan() {
		return fmt.Errorf("no input received")
	}
	token := strings.TrimSpace(scanner.Text())
	if token == "" {
		return fmt.Errorf("token is required")
	}

	fmt.Println()
	fmt.Println("2. Whitelist Telegram user ID(s) and/or @username(s):")
	fmt.Println("   - Send any message to your bot")
	fmt.Printf("   - Visit https://api.telegram.org/bot%s/getUpdates\n", token)
	fmt.Println("   - Find the numeric 'id' or 'username' under 'from'")
	fmt.Println("   - Mix numeric IDs and @usernames freely (e.g. 123456, @alice)")
	fmt.Print("   Allowed users (comma-separated, required): ")

	if !scanner.Scan() {
		return fmt.Errorf("no input received")
	}
	userIDs, usernames, err := parseAllowedUsers(scanner.Text())
	if err != nil {
		return err
	}

	cfg.Telegram.BotToken = token
	cfg.Telegram.AllowedUserIDs = userIDs
	cfg.Telegram.AllowedUsernames = usernames
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save telegram config: %w", err)
	}

	// Update in-memory config so Run() can proceed immediately after setup.
	p.cfg = cfg.Telegram
	fmt.Println()
	fmt.Println("Telegram configuration saved.")
	return nil
}

func parseAllowedUsers(raw string) ([]int64, []string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, fmt.Errorf("at least one user ID or username is required")
	}
	var userIDs []int64
	var usernames []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "@") {
			if name := strings.TrimPrefix(part, "@"); name != "" {
				usernames = append(usernames, strings.ToLower(name))
			}
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid entry %q: must be a numeric ID or @username", part)
		}
		userIDs = append(userIDs, id)
	}
	if len(userIDs) == 0 && len(usernames) == 0 {
		return nil, nil, fmt.Errorf("at least one valid user ID or @username is required")
	}
	return userIDs, usernames, nil
}

// Run starts the Telegram bot loop, blocking until ctx is cancelled.
func (p *TelegramPlatform) Run(ctx context.Context, settings Settings) error {
	token := strings.TrimSpace(p.cfg.BotToken)
	if token == "" {
		return fmt.Errorf("telegram bot token is not configured; run with --setup to configure")
	}
	if len(p.cfg.AllowedUserIDs) == 0 && len(p.cfg.AllowedUsernames) == 0 {
		p.log.Warn("no allowed_user_ids or allowed_usernames configured; all messages will be rejected")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return fmt.Errorf("telegram connect: %w", err)
	}
	p.log.WithField("bot", bot.Self.UserName).Info("authorised")

	mgr := newChatManager(p.cfg, settings, p.log)
	defer mgr.close()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go mgr.handleMessage(ctx, bot, update.Message)
		}
	}
}

// chatState holds per-chat conversation state.
type chatState struct {
	mu           sync.Mutex
	history      []llm.Message
	meta         *session.Session
	lastActivity time.Time
}

// chatManager routes messages to per-chat state. The state lives in a
// bounded cache: an idle chat is dropped (and its session marked complete)
// instead of staying resident forever.
type chatManager struct {
	chats            *cache.Conversations[*chatState]
	settings         Settings
	store            session.Store
	loop             *dispatch.Loop
	idleTimeout      time.Duration
	allowedUserIDs   map[int64]struct{}
	allowedUsernames map[string]struct{}
	tickerInterval   time.Duration // 0 means use settings.EditInterval; overridden in tests
	log              *logrus.Entry

	createMu sync.Mutex // serializes chat state creation
}

func newChatManager(cfg config.TelegramConfig, settings Settings, log *logrus.Entry) *chatManager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	idleTimeout := settings.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	maxChats := settings.MaxChats
	if maxChats <= 0 {
		maxChats = 256
	}

	store := settings.Store
	if store == nil {
		store = &session.NoopStore{}
	}

	loop := dispatch.New(settings.Provider, settings.Tools, log)
	if settings.MaxToolCycles > 0 {
		loop.SetMaxCycles(settings.MaxToolCycles)
	}

	m := &chatManager{
		chats:            cache.NewConversations[*chatState](maxChats, idleTimeout),
		settings:         settings,
		store:            store,
		loop:             loop,
		idleTimeout:      idleTimeout,
		allowedUserIDs:   buildAllowedSet(cfg.AllowedUserIDs),
		allowedUsernames: buildAllowedUsernameSet(cfg.AllowedUsernames),
		log:              log,
	}
	m.chats.OnEvict = func(chatID int64, st *chatState) {
		m.finishSession(st, session.StatusComplete)
	}
	return m
}

func buildAllowedSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func buildAllowedUsernameSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, name := range names {
		m[strings.ToLower(name)] = struct{}{}
	}
	return m
}

func (m *chatManager) isAllowed(userID int64, username string) bool {
	if len(m.allowedUserIDs) == 0 && len(m.allowedUsernames) == 0 {
		return false
	}
	if _, ok := m.allowedUserIDs[userID]; ok {
		return true
	}
	if username != "" {
		_, ok := m.allowedUsernames[strings.ToLower(username)]
		return ok
	}
	return false
}

func (m *chatManager) getOrCreate(ctx context.Context, chatID int64) *chatState {
	m.createMu.Lock()
	defer m.createMu.Unlock()
	if st, ok := m.chats.Get(chatID); ok {
		return st
	}
	st := m.resumeChatState(ctx, chatID)
	if st == nil {
		st = m.newChatState(ctx, chatID)
	}
	m.chats.Put(chatID, st)
	return st
}

func (m *chatManager) newChatState(ctx context.Context, chatID int64) *chatState {
	meta := &session.Session{
		ID:       session.NewID(),
		ChatID:   chatID,
		Provider: m.settings.ProviderName,
		Model:    m.settings.ModelName,
		Status:   session.StatusActive,
	}
	if err := m.store.Create(ctx, meta); err != nil {
		m.log.WithError(err).Warn("session create failed")
	}
	return &chatState{meta: meta, lastActivity: time.Now()}
}

// resumeChatState rehydrates a chat from its most recent still-active
// session, so a process restart does not lose the conversation. Returns nil
// when there is nothing to resume.
func (m *chatManager) resumeChatState(ctx context.Context, chatID int64) *chatState {
	meta, err := m.store.GetByChat(ctx, chatID)
	if err != nil {
		m.log.WithError(err).Warn("session lookup failed")
		return nil
	}
	if meta == nil || meta.Status != session.StatusActive {
		return nil
	}
	if time.Since(meta.UpdatedAt) > m.idleTimeout {
		// Stale: the chat would have been reset had the process stayed up.
		if err := m.store.UpdateStatus(ctx, meta.ID, session.StatusComplete); err != nil {
			m.log.WithError(err).Debug("session status update failed")
		}
		return nil
	}
	stored, err := m.store.GetMessages(ctx, meta.ID)
	if err != nil {
		m.log.WithError(err).WithField("session_id", meta.ID).Warn("session replay failed")
		return nil
	}
	history := make([]llm.Message, 0, len(stored))
	for i := range stored {
		history = append(history, stored[i].ToLLMMessage())
	}
	m.log.WithFields(logrus.Fields{
		"chat_id":  chatID,
		"messages": len(history),
	}).Info("resumed session")
	return &chatState{meta: meta, history: history, lastActivity: time.Now()}
}

func (m *chatManager) reset(ctx context.Context, chatID int64) *chatState {
	m.createMu.Lock()
	defer m.createMu.Unlock()
	if old, ok := m.chats.Get(chatID); ok {
		m.chats.Delete(chatID)
		m.finishSession(old, session.StatusComplete)
	} else if meta, err := m.store.GetByChat(ctx, chatID); err == nil && meta != nil && meta.Status == session.StatusActive {
		// Not resident, but still resumable from the store: close it out so
		// the reset sticks.
		if err := m.store.UpdateStatus(ctx, meta.ID, session.StatusComplete); err != nil {
			m.log.WithError(err).Debug("session status update failed")
		}
	}
	st := m.newChatState(ctx, chatID)
	m.chats.Put(chatID, st)
	return st
}

func (m *chatManager) finishSession(st *chatState, status session.Status) {
	st.mu.Lock()
	meta := st.meta
	st.mu.Unlock()
	if meta == nil {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.UpdateStatus(storeCtx, meta.ID, status); err != nil {
		m.log.WithError(err).Debug("session status update failed")
	}
}

func (m *chatManager) close() {
	m.chats.Clear()
}

func (m *chatManager) handleMessage(ctx context.Context, bot botSender, msg *tgbotapi.Message) {
	if msg.From == nil || !m.isAllowed(msg.From.ID, msg.From.UserName) {
		m.log.WithFields(logrus.Fields{
			"user_id":  userID(msg),
			"username": userName(msg),
		}).Info("ignoring message from unauthorised user")
		return
	}

	chatID := msg.Chat.ID

	if msg.IsCommand() {
		m.handleCommand(ctx, bot, chatID, msg.Command())
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	st := m.getOrCreate(ctx, chatID)

	// An expired conversation starts over; the cache may have already
	// dropped it, in which case getOrCreate returned a fresh one.
	st.mu.Lock()
	expired := time.Since(st.lastActivity) > m.idleTimeout && len(st.history) > 0
	if !expired {
		st.lastActivity = time.Now()
	}
	st.mu.Unlock()
	if expired {
		st = m.reset(ctx, chatID)
		_, _ = bot.Send(tgbotapi.NewMessage(chatID, "(Session reset due to inactivity)"))
	}

	// Show "typing…" while the first tokens are generated.
	_, _ = bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	if err := m.streamReply(ctx, bot, st, chatID, text); err != nil {
		m.log.WithError(err).WithField("chat_id", chatID).Error("streaming reply failed")
		_, _ = bot.Send(tgbotapi.NewMessage(chatID, "Sorry, an error occurred: "+err.Error()))
	}
}

func (m *chatManager) handleCommand(ctx context.Context, bot botSender, chatID int64, command string) {
	switch command {
	case "start", "help":
		helpText := "I'm your AI assistant. Send me a message to get started!\n\n" +
			"Commands:\n" +
			"/reset  - Clear conversation history\n" +
			"/status - Show session info"
		_, _ = bot.Send(tgbotapi.NewMessage(chatID, helpText))

	case "reset":
		m.reset(ctx, chatID)
		_, _ = bot.Send(tgbotapi.NewMessage(chatID, "Conversation history cleared."))

	case "status":
		st := m.getOrCreate(ctx, chatID)
		st.mu.Lock()
		msgCount := len(st.history)
		lastAct := st.lastActivity
		st.mu.Unlock()
		status := fmt.Sprintf("Session active\nProvider: %s\nModel: %s\nMessages in history: %d\nActive chats: %d\nLast activity: %s",
			m.settings.ProviderName, m.settings.ModelName, msgCount, m.chats.Len(), lastAct.Format(time.RFC3339))
		_, _ = bot.Send(tgbotapi.NewMessage(chatID, status))
	}
}

// streamReply runs one dispatch turn and live-edits the reply into the chat.
func (m *chatManager) streamReply(ctx context.Context, bot botSender, st *chatState, chatID int64, userText string) error {
	// Hold the chat lock for the whole turn so concurrent messages from
	// the same chat are serialised.
	st.mu.Lock()
	defer st.mu.Unlock()

	messages := make([]llm.Message, 0, len(st.history)+2)
	historyHasSystem := containsSystemMsg(st.history)
	if m.settings.SystemPrompt != "" && !historyHasSystem {
		messages = append(messages, llm.SystemText(m.settings.SystemPrompt))
	}
	messages = append(messages, st.history...)
	messages = append(messages, llm.UserText(userText))

	m.persistUserTurn(ctx, st, userText, historyHasSystem)

	// Placeholder message gives us an ID to live-edit.
	placeholder, err := bot.Send(tgbotapi.NewMessage(chatID, "⏳"))
	if err != nil {
		return fmt.Errorf("send placeholder: %w", err)
	}

	limit := m.settings.MessageLimit
	if limit <= 0 {
		limit = 4000
	}
	pusher := push.New(&telegramSink{bot: bot, chatID: chatID, log: m.log}, limit, m.log)
	pusher.AdoptMessage(placeholder.MessageID)

	req := llm.Request{
		Messages:        messages,
		MaxOutputTokens: m.settings.MaxOutputTokens,
	}

	type outcome struct {
		res *dispatch.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, runErr := m.loop.Run(ctx, req, pusherEmitter{pusher})
		done <- outcome{res: res, err: runErr}
	}()

	interval := m.tickerInterval
	if interval <= 0 {
		interval = m.settings.EditInterval
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var result *dispatch.Result
loop:
	for {
		select {
		case out := <-done:
			if out.err != nil {
				m.markStatus(st, session.StatusError)
				return out.err
			}
			result = out.res
			break loop
		case <-ticker.C:
			pusher.Sync(ctx)
		case <-ctx.Done():
			m.markStatus(st, session.StatusInterrupted)
			return ctx.Err()
		}
	}

	pusher.Finalize(context.WithoutCancel(ctx))

	if result.Text == "" {
		// Nothing user-visible was produced; fill the placeholder.
		fallback := "(no response)"
		if len(result.ToolCalls) > 0 {
			fallback = "(done)"
		}
		_, _ = bot.Send(tgbotapi.NewEditMessageText(chatID, placeholder.MessageID, fallback))
	}

	m.persistTurnResult(ctx, st, messages, result)
	st.history = result.Messages
	st.lastActivity = time.Now()
	return nil
}

func (m *chatManager) persistUserTurn(ctx context.Context, st *chatState, userText string, historyHasSystem bool) {
	meta := st.meta
	if meta == nil {
		return
	}
	if m.settings.SystemPrompt != "" && !historyHasSystem {
		sysMsg := session.NewMessage(meta.ID, llm.SystemText(m.settings.SystemPrompt), -1)
		if err := m.store.AddMessage(ctx, meta.ID, sysMsg); err != nil {
			m.log.WithError(err).Debug("persist system message failed")
		}
	}
	userMsg := session.NewMessage(meta.ID, llm.UserText(userText), -1)
	if err := m.store.AddMessage(ctx, meta.ID, userMsg); err != nil {
		m.log.WithError(err).Debug("persist user message failed")
	}
	if err := m.store.IncrementUserTurns(ctx, meta.ID); err != nil {
		m.log.WithError(err).Debug("increment user turns failed")
	}
	if meta.Summary == "" {
		meta.Summary = session.TruncateSummary(userText)
		if err := m.store.Update(ctx, meta); err != nil {
			m.log.WithError(err).Debug("session summary update failed")
		}
	}
}

func (m *chatManager) persistTurnResult(ctx context.Context, st *chatState, sent []llm.Message, result *dispatch.Result) {
	meta := st.meta
	if meta == nil {
		return
	}
	// Persist only what this turn appended beyond the messages we sent.
	for _, msg := range result.Messages[len(sent):] {
		if err := m.store.AddMessage(ctx, meta.ID, session.NewMessage(meta.ID, msg, -1)); err != nil {
			m.log.WithError(err).Debug("persist turn message failed")
		}
	}
	err := m.store.UpdateMetrics(ctx, meta.ID,
		len(result.ToolCalls), result.Usage.InputTokens, result.Usage.OutputTokens)
	if err != nil {
		m.log.WithError(err).Debug("session metrics update failed")
	}
	if err := m.store.UpdateStatus(ctx, meta.ID, session.StatusActive); err != nil {
		m.log.WithError(err).Debug("session status update failed")
	}
}

func (m *chatManager) markStatus(st *chatState, status session.Status) {
	if st.meta == nil {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.UpdateStatus(storeCtx, st.meta.ID, status); err != nil {
		m.log.WithError(err).Debug("session status update failed")
	}
}

func containsSystemMsg(msgs []llm.Message) bool {
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			return true
		}
	}
	return false
}

func userID(msg *tgbotapi.Message) int64 {
	if msg.From == nil {
		return 0
	}
	return msg.From.ID
}

func userName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return ""
	}
	return msg.From.UserName
}

// pusherEmitter feeds dispatch output into the pusher.
type pusherEmitter struct{ p *push.Pusher }

func (e pusherEmitter) Text(fragment string) { e.p.Append(fragment) }
func (e pusherEmitter) Status(status string) { e.p.SetStatus(status) }

// telegramSink posts pusher output as Telegram HTML, falling back to plain
// text when the rendered entities are rejected.
type telegramSink struct {
	bot    botSender
	chatID int64
	log    *logrus.Entry
}

func (s *telegramSink) Create(ctx context.Context, text string) (int, error) {
	msg := tgbotapi.NewMessage(s.chatID, renderTelegramHTML(text))
	msg.ParseMode = tgbotapi.ModeHTML
	sent, err := s.bot.Send(msg)
	if err != nil {
		sent, err = s.bot.Send(tgbotapi.NewMessage(s.chatID, text))
	}
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (s *telegramSink) Edit(ctx context.Context, id int, text string) error {
	edit := tgbotapi.NewEditMessageText(s.chatID, id, renderTelegramHTML(text))
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := s.bot.Send(edit); err != nil {
		_, err = s.bot.Send(tgbotapi.NewEditMessageText(s.chatID, id, text))
		return err
	}
	return nil
}

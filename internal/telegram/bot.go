package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cycleuser/audiblez/internal/i18n"
	"github.com/cycleuser/audiblez/internal/logger"
	"github.com/cycleuser/audiblez/internal/models"
	"github.com/cycleuser/audiblez/internal/service"
	"github.com/cycleuser/audiblez/internal/tts"
)

// botAPI is the subset of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// JobStore is where the bot keeps job history.
type JobStore interface {
	EnsureUser(ctx context.Context, telegramID int64, username string) error
	CreateJob(ctx context.Context, job models.Job) (models.Job, error)
	FinishJob(ctx context.Context, jobID string, status models.JobStatus, message, output string) error
	ListJobs(ctx context.Context, userID int64, limit int) ([]models.Job, error)
}

// Settings are the per-chat conversion and interface preferences.
type Settings struct {
	Lang   string
	Voice  string
	Speed  int
	UI     string
	Manual bool
}

type Options struct {
	StorageDir string
	MiniAppURL string
	MaxUpload  int64
	Defaults   Settings
	HTTPClient *http.Client
}

type Bot struct {
	api        botAPI
	conv       *service.Converter
	synth      tts.Synthesizer
	store      JobStore
	opts       Options
	httpClient *http.Client
	log        logger.Logger

	sessions   map[int64]*chatSession
	sessionsMu sync.Mutex
}

type chatSession struct {
	settings Settings
	// cancel is set while a conversion runs in the chat.
	cancel context.CancelFunc
	pick   *pickState
}

const (
	cbLangPrefix  = "lang:"
	cbVoicePrefix = "voice:"
	cbUIPrefix    = "ui:"
	cbPickPrefix  = "pick:"
)

func NewBot(token string, conv *service.Converter, synth tts.Synthesizer, store JobStore, opts Options, log logger.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	log.Info("authorized on telegram", "account", api.Self.UserName)
	return newBot(api, conv, synth, store, opts, log), nil
}

func newBot(api botAPI, conv *service.Converter, synth tts.Synthesizer, store JobStore, opts Options, log logger.Logger) *Bot {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Bot{
		api:        api,
		conv:       conv,
		synth:      synth,
		store:      store,
		opts:       opts,
		httpClient: client,
		log:        log,
		sessions:   make(map[int64]*chatSession),
	}
}

// Start runs the update loop until ctx is cancelled. Running conversions are
// cancelled with it.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("telegram bot stopping")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
			if update.CallbackQuery != nil {
				b.handleCallback(update.CallbackQuery)
			}
		}
	}
}

// session returns the chat's session, creating it with the bot defaults and
// the user's client language.
func (b *Bot) session(chatID int64, langCode string) *chatSession {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()

	s, ok := b.sessions[chatID]
	if !ok {
		settings := b.opts.Defaults
		settings.UI = i18n.Normalize(langCode)
		s = &chatSession{settings: settings}
		b.sessions[chatID] = s
	}
	return s
}

func (b *Bot) settings(chatID int64) Settings {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()
	if s, ok := b.sessions[chatID]; ok {
		return s.settings
	}
	return b.opts.Defaults
}

func (b *Bot) updateSettings(chatID int64, fn func(*Settings)) Settings {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()
	s := b.sessions[chatID]
	fn(&s.settings)
	return s.settings
}

func (b *Bot) texts(chatID int64) i18n.Texts {
	return i18n.Get(b.settings(chatID).UI)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	userID := chatID
	langCode := ""
	if msg.From != nil {
		userID = msg.From.ID
		langCode = msg.From.LanguageCode
	}
	b.session(chatID, langCode)

	if msg.Document != nil {
		b.handleDocument(ctx, msg)
		return
	}
	if !msg.IsCommand() {
		b.sendMessage(chatID, b.texts(chatID).NotEPUB)
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		b.sendWelcome(chatID)
	case "lang":
		b.handleLang(chatID, args)
	case "voice":
		b.handleVoice(ctx, chatID, args)
	case "speed":
		b.handleSpeed(chatID, args)
	case "ui":
		b.sendKeyboard(chatID, b.texts(chatID).UIPrompt, uiKeyboard())
	case "manual":
		s := b.updateSettings(chatID, func(s *Settings) { s.Manual = !s.Manual })
		t := b.texts(chatID)
		if s.Manual {
			b.sendMessage(chatID, t.ManualOn)
		} else {
			b.sendMessage(chatID, t.ManualOff)
		}
	case "cancel":
		b.handleCancel(chatID)
	case "jobs":
		b.handleJobs(ctx, chatID, userID)
	default:
		b.sendWelcome(chatID)
	}
}

func (b *Bot) sendWelcome(chatID int64) {
	t := b.texts(chatID)
	s := b.settings(chatID)
	text := t.Welcome + "\n\n" + fmt.Sprintf(t.Settingsf, s.Lang, s.Voice, s.Speed, s.Manual)

	msg := tgbotapi.NewMessage(chatID, text)
	if b.opts.MiniAppURL != "" {
		msg.ReplyMarkup = webAppMarkup(t.OpenApp, b.opts.MiniAppURL)
	}
	b.send(msg)
}

func (b *Bot) handleLang(chatID int64, arg string) {
	t := b.texts(chatID)
	if arg == "" {
		b.sendKeyboard(chatID, t.LangPrompt, choiceKeyboard(cbLangPrefix, tts.Languages, 3))
		return
	}
	b.setLang(chatID, arg)
}

func (b *Bot) setLang(chatID int64, lang string) {
	t := b.texts(chatID)
	lang = strings.ToLower(lang)
	if err := tts.ValidateLanguage(lang); err != nil {
		b.sendKeyboard(chatID, t.LangPrompt, choiceKeyboard(cbLangPrefix, tts.Languages, 3))
		return
	}
	b.updateSettings(chatID, func(s *Settings) { s.Lang = lang })
	b.sendMessage(chatID, fmt.Sprintf(t.LangSetf, lang))
}

func (b *Bot) handleVoice(ctx context.Context, chatID int64, arg string) {
	t := b.texts(chatID)
	if arg != "" {
		b.setVoice(ctx, chatID, arg)
		return
	}
	voices, err := b.synth.Voices(ctx)
	if err != nil {
		b.log.Error("list voices", "chat", chatID, "error", err)
		b.sendMessage(chatID, fmt.Sprintf(t.Failedf, err))
		return
	}
	b.sendKeyboard(chatID, t.VoicePrompt, choiceKeyboard(cbVoicePrefix, voices, 3))
}

func (b *Bot) setVoice(ctx context.Context, chatID int64, voice string) {
	t := b.texts(chatID)
	if err := tts.ValidateVoice(ctx, b.synth, voice); err != nil {
		b.sendMessage(chatID, t.VoiceUnknown)
		return
	}
	b.updateSettings(chatID, func(s *Settings) { s.Voice = voice })
	b.sendMessage(chatID, fmt.Sprintf(t.VoiceSetf, voice))
}

func (b *Bot) handleSpeed(chatID int64, arg string) {
	t := b.texts(chatID)
	if arg == "" {
		b.sendMessage(chatID, t.SpeedPrompt)
		return
	}
	units, err := strconv.Atoi(arg)
	if err == nil {
		_, err = service.SpeedFromControl(units)
	}
	if err != nil {
		b.sendMessage(chatID, t.SpeedInvalid)
		return
	}
	b.updateSettings(chatID, func(s *Settings) { s.Speed = units })
	b.sendMessage(chatID, fmt.Sprintf(t.SpeedSetf, units))
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	langCode := ""
	if cb.From != nil {
		langCode = cb.From.LanguageCode
	}
	b.session(chatID, langCode)
	data := cb.Data

	b.answer(cb.ID, "")

	switch {
	case strings.HasPrefix(data, cbPickPrefix):
		b.handlePickCallback(chatID, cb.Message.MessageID, strings.TrimPrefix(data, cbPickPrefix))
	case strings.HasPrefix(data, cbLangPrefix):
		b.setLang(chatID, strings.TrimPrefix(data, cbLangPrefix))
	case strings.HasPrefix(data, cbVoicePrefix):
		b.setVoice(context.Background(), chatID, strings.TrimPrefix(data, cbVoicePrefix))
	case strings.HasPrefix(data, cbUIPrefix):
		locale := i18n.Normalize(strings.TrimPrefix(data, cbUIPrefix))
		b.updateSettings(chatID, func(s *Settings) { s.UI = locale })
		b.sendMessage(chatID, b.texts(chatID).UISet)
	default:
		b.log.Warn("unknown callback", "chat", chatID, "data", data)
	}
}

func choiceKeyboard(prefix string, values []string, perRow int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, v := range values {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(v, prefix+v))
		if len(row) == perRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func uiKeyboard() tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, locale := range i18n.Locales {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(i18n.Get(locale).LanguageName, cbUIPrefix+locale))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// The library version in use has no web_app button type.
type webAppInfo struct {
	URL string `json:"url"`
}

type inlineKeyboardButton struct {
	Text   string      `json:"text"`
	WebApp *webAppInfo `json:"web_app,omitempty"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

func webAppMarkup(label, url string) inlineKeyboardMarkup {
	return inlineKeyboardMarkup{
		InlineKeyboard: [][]inlineKeyboardButton{
			{{Text: label, WebApp: &webAppInfo{URL: url}}},
		},
	}
}

func (b *Bot) sendKeyboard(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	b.send(msg)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) tgbotapi.Message {
	m, err := b.api.Send(c)
	if err != nil {
		b.log.Warn("telegram send failed", "error", err)
	}
	return m
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Debug("callback answer failed", "error", err)
	}
}

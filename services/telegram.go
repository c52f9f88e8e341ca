package services

import (
	context2 "context"
	"fmt"
	"strings"
	"time"

	"github.com/requiem-ai/gemrelay/config"
	"github.com/requiem-ai/gemrelay/context"
	"github.com/requiem-ai/gemrelay/markup"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tb "gopkg.in/telebot.v3"
)

const failureMessage = "Sorry, I couldn't get a response right now. Please try again later."

const helpMessage = `Send me any text and I'll ask the model for you.

Commands:
/start - say hello
/help - show this message
/models - show the model and markup in use`

// sender is the subset of *tb.Bot used to deliver replies.
type sender interface {
	Send(to tb.Recipient, what interface{}, opts ...interface{}) (*tb.Message, error)
	Notify(to tb.Recipient, action tb.ChatAction, threadID ...int) error
}

type TelegramService struct {
	context.DefaultService

	Config *config.Config

	Bot *tb.Bot

	fetcher    *FetcherService
	transcoder *markup.Transcoder
	parseMode  tb.ParseMode
	sender     sender

	modelsMarkup  *tb.ReplyMarkup
	modelsModel   tb.Btn
	modelsDialect tb.Btn
}

const TELEGRAM_SVC = "telegram_svc"

func (svc TelegramService) Id() string {
	return TELEGRAM_SVC
}

func (svc *TelegramService) Configure(ctx *context.Context) (err error) {
	dialect, err := svc.Config.Dialect()
	if err != nil {
		return err
	}
	svc.transcoder, err = markup.NewTranscoder(dialect, svc.Config.MaxMessageLength)
	if err != nil {
		return err
	}
	svc.parseMode = parseModeFor(dialect)

	svc.Bot, err = tb.NewBot(tb.Settings{
		Token:  svc.Config.BotToken,
		Poller: svc.poller(),
		OnError: func(err error, c tb.Context) {
			svc.decorateTelegramEvent(log.Error().Err(err), c).Msg("telegram bot error")
		},
	})
	if err != nil {
		return err
	}
	svc.sender = svc.Bot

	return svc.DefaultService.Configure(ctx)
}

func (svc *TelegramService) Start() error {
	svc.fetcher = svc.Service(FETCHER_SVC).(*FetcherService)

	svc.setupHandlers()

	log.Info().
		Bool("webhook", svc.Config.UseWebhook()).
		Str("dialect", string(svc.transcoder.Dialect())).
		Str("bot", svc.Bot.Me.Username).
		Msg("telegram bot started")

	svc.Bot.Start()

	return nil
}

func (svc *TelegramService) Shutdown() {
	if svc.Bot == nil {
		return
	}
	svc.Bot.Stop()
}

func (svc *TelegramService) poller() tb.Poller {
	if !svc.Config.UseWebhook() {
		return &tb.LongPoller{Timeout: 30 * time.Second}
	}

	return &tb.Webhook{
		Listen:         svc.Config.WebhookListen,
		AllowedUpdates: []string{"message", "callback_query"},
		Endpoint: &tb.WebhookEndpoint{
			PublicURL: svc.Config.WebhookURL,
		},
	}
}

func parseModeFor(dialect markup.Dialect) tb.ParseMode {
	if dialect == markup.DialectMarkdownV2 {
		return tb.ModeMarkdownV2
	}
	return tb.ModeHTML
}

func (svc *TelegramService) setupHandlers() {
	svc.Bot.Handle("/start", svc.guardHandler(svc.onStart))
	svc.Bot.Handle("/help", svc.guardHandler(svc.onHelp))
	svc.Bot.Handle("/models", svc.guardHandler(svc.onModels))

	svc.Bot.Handle(tb.OnText, svc.guardHandler(svc.onText))

	svc.modelsMarkup = &tb.ReplyMarkup{}
	svc.modelsModel = svc.modelsMarkup.Data("Model: "+svc.Config.GeminiModel, "models_model", svc.Config.GeminiModel)
	svc.modelsDialect = svc.modelsMarkup.Data("Markup: "+string(svc.transcoder.Dialect()), "models_dialect", string(svc.transcoder.Dialect()))
	svc.modelsMarkup.Inline(
		svc.modelsMarkup.Row(svc.modelsModel),
		svc.modelsMarkup.Row(svc.modelsDialect),
	)

	svc.Bot.Handle(&svc.modelsModel, svc.guardHandler(svc.onModelsSelect))
	svc.Bot.Handle(&svc.modelsDialect, svc.guardHandler(svc.onModelsSelect))
}

func (svc *TelegramService) guardHandler(fn tb.HandlerFunc) tb.HandlerFunc {
	return func(c tb.Context) error {
		if c != nil {
			svc.decorateTelegramEvent(log.Debug(), c).Msg("inbound telegram update")
		}

		var user *tb.User
		if c != nil {
			user = c.Sender()
		}
		allowed, reason := svc.isAllowedUser(user)
		if !allowed {
			svc.decorateTelegramEvent(
				log.Warn().
					Str("reason", reason).
					Int64("allowed_user_id", svc.Config.AllowedUserID),
				c,
			).Msg("telegram update blocked")
			return nil
		}

		if err := fn(c); err != nil {
			svc.decorateTelegramEvent(log.Error().Err(err), c).Msg("telegram handler returned error")
			return err
		}

		return nil
	}
}

func (svc *TelegramService) decorateTelegramEvent(event *zerolog.Event, c tb.Context) *zerolog.Event {
	if event == nil || c == nil {
		return event
	}

	if chat := c.Chat(); chat != nil {
		event = event.Int64("chat_id", chat.ID).Str("chat_type", string(chat.Type))
	}

	if sender := c.Sender(); sender != nil {
		event = event.Int64("user_id", sender.ID).Str("sender_username", sender.Username)
	}

	if msg := c.Message(); msg != nil {
		event = event.
			Int("message_id", msg.ID).
			Int("thread_id", msg.ThreadID).
			Int("message_length", len(msg.Text))
		if text := strings.TrimSpace(msg.Text); strings.HasPrefix(text, "/") {
			if fields := strings.Fields(strings.TrimPrefix(text, "/")); len(fields) > 0 {
				event = event.Str("command", fields[0])
			}
		}
	}

	if callback := c.Callback(); callback != nil {
		event = event.
			Str("callback_data", callback.Data).
			Str("callback_unique", callback.Unique)
	}

	return event
}

func (svc *TelegramService) isAllowedUser(sender *tb.User) (bool, string) {
	if sender != nil && svc.Bot != nil && svc.Bot.Me != nil && sender.ID == svc.Bot.Me.ID {
		return false, "sender_is_bot"
	}
	if svc.Config.AllowedUserID == 0 {
		return true, ""
	}
	if sender == nil {
		return false, "missing_sender"
	}
	if sender.ID != svc.Config.AllowedUserID {
		return false, "sender_not_allowed"
	}
	return true, ""
}

func (svc *TelegramService) onStart(c tb.Context) error {
	greeting := "Hi!"
	if user := c.Sender(); user != nil {
		greeting = fmt.Sprintf("Hi %s!", svc.mention(user))
	}

	return c.Send(greeting, &tb.SendOptions{
		ParseMode:   svc.parseMode,
		ReplyMarkup: &tb.ReplyMarkup{ForceReply: true, Selective: true},
	})
}

// mention links to the user in the deployment's dialect.
func (svc *TelegramService) mention(user *tb.User) string {
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName + " " + user.LastName))
	if name == "" {
		name = user.Username
	}
	if svc.transcoder.Dialect() == markup.DialectMarkdownV2 {
		return fmt.Sprintf("[%s](tg://user?id=%d)", markup.EscapeMarkdownV2(name), user.ID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, user.ID, markup.EscapeHTML(name))
}

func (svc *TelegramService) onHelp(c tb.Context) error {
	return c.Send(helpMessage)
}

func (svc *TelegramService) onModels(c tb.Context) error {
	return c.Send("Current configuration:", &tb.SendOptions{ReplyMarkup: svc.modelsMarkup})
}

func (svc *TelegramService) onModelsSelect(c tb.Context) error {
	_ = c.Respond()
	return c.Edit(fmt.Sprintf("Selected option: %s", c.Data()))
}

func (svc *TelegramService) onText(c tb.Context) error {
	msg := c.Message()
	if msg == nil || c.Chat() == nil {
		return nil
	}

	if strings.HasPrefix(msg.Text, "/") {
		return nil
	}

	threadID := 0
	if msg.TopicMessage {
		threadID = msg.ThreadID
	}

	return svc.relay(svc.Base(), c.Chat(), msg.Text, threadID)
}

// relay answers one message: fetch, transcode, deliver. Nothing is sent when
// ctx is done by the time the model answers.
func (svc *TelegramService) relay(ctx context2.Context, to tb.Recipient, text string, threadID int) error {
	logger := log.With().Str("chat", to.Recipient()).Int("thread_id", threadID).Logger()

	_ = svc.sender.Notify(to, tb.Typing, threadID)

	started := time.Now()
	raw, err := svc.fetcher.Fetch(ctx, text)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("failed to fetch model response")
		if svc.Config.NotifyOnFailure && ctx.Err() == nil {
			if _, sendErr := svc.sender.Send(to, failureMessage, &tb.SendOptions{ThreadID: threadID}); sendErr != nil {
				logger.Error().Err(sendErr).Msg("failed to send failure notice")
			}
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		logger.Warn().Err(err).Msg("dropping model response, request cancelled")
		return err
	}

	chunks := svc.transcoder.Transcode(raw)
	sent := svc.deliver(to, chunks, threadID)

	logger.Info().
		Dur("elapsed", time.Since(started)).
		Int("response_length", len(raw)).
		Int("chunks", len(chunks)).
		Int("sent", sent).
		Msg("relayed model response")
	return nil
}

// deliver sends every chunk, retrying a rejected chunk once as plain text.
// A chunk that fails both ways is logged and skipped.
func (svc *TelegramService) deliver(to tb.Recipient, chunks []string, threadID int) int {
	sent := 0
	for i, chunk := range chunks {
		if svc.transcoder.Blank(chunk) {
			continue
		}

		_, err := svc.sender.Send(to, chunk, &tb.SendOptions{
			ParseMode:             svc.parseMode,
			DisableWebPagePreview: true,
			ThreadID:              threadID,
		})
		if err == nil {
			sent++
			continue
		}
		log.Warn().Err(err).Int("chunk", i).Str("parse_mode", string(svc.parseMode)).Msg("failed to send formatted chunk; fallback to plain text")

		_, err = svc.sender.Send(to, chunk, &tb.SendOptions{
			DisableWebPagePreview: true,
			ThreadID:              threadID,
		})
		if err != nil {
			log.Error().Err(err).Int("chunk", i).Int("chunks", len(chunks)).Msg("failed to send chunk as plain text")
			continue
		}
		sent++
	}
	return sent
}

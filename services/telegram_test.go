package services

import (
	context2 "context"
	"errors"
	"strings"
	"testing"

	"github.com/requiem-ai/gemrelay/config"
	"github.com/requiem-ai/gemrelay/llm"
	"github.com/requiem-ai/gemrelay/markup"
	tb "gopkg.in/telebot.v3"
)

type stubClient struct {
	text  string
	err   error
	calls int
}

func (c *stubClient) ID() string { return "stub" }

func (c *stubClient) Send(_ context2.Context, _ llm.Request) (llm.Response, error) {
	c.calls++
	if c.err != nil {
		return llm.Response{}, c.err
	}
	return llm.Response{Text: c.text, Model: "stub-model"}, nil
}

type sentMessage struct {
	text string
	opts *tb.SendOptions
}

type fakeSender struct {
	sent     []sentMessage
	notifies int
	// fail decides whether the n-th Send call (0-based) is rejected.
	fail func(n int) bool
}

func (f *fakeSender) Send(_ tb.Recipient, what interface{}, opts ...interface{}) (*tb.Message, error) {
	n := len(f.sent)
	msg := sentMessage{text: what.(string)}
	for _, opt := range opts {
		if o, ok := opt.(*tb.SendOptions); ok {
			msg.opts = o
		}
	}
	f.sent = append(f.sent, msg)
	if f.fail != nil && f.fail(n) {
		return nil, errors.New("Bad Request: can't parse entities")
	}
	return &tb.Message{ID: n + 1}, nil
}

func (f *fakeSender) Notify(_ tb.Recipient, _ tb.ChatAction, _ ...int) error {
	f.notifies++
	return nil
}

func newTestTelegram(t *testing.T, dialect markup.Dialect, limit int, client llm.Client) (*TelegramService, *fakeSender) {
	t.Helper()
	transcoder, err := markup.NewTranscoder(dialect, limit)
	if err != nil {
		t.Fatalf("NewTranscoder() error: %v", err)
	}
	cfg := &config.Config{NotifyOnFailure: true}
	sender := &fakeSender{}
	svc := &TelegramService{
		Config:     cfg,
		fetcher:    &FetcherService{Config: cfg, Client: client},
		transcoder: transcoder,
		parseMode:  parseModeFor(dialect),
		sender:     sender,
	}
	return svc, sender
}

func TestRelay_SendsTranscodedResponse(t *testing.T) {
	client := &stubClient{text: "**hello** `world`"}
	svc, sender := newTestTelegram(t, markup.DialectHTML, 0, client)

	if err := svc.relay(context2.Background(), &tb.Chat{ID: 42}, "hi", 0); err != nil {
		t.Fatalf("relay() error: %v", err)
	}

	if client.calls != 1 {
		t.Errorf("got %d model calls, want 1", client.calls)
	}
	if sender.notifies != 1 {
		t.Errorf("got %d chat actions, want 1", sender.notifies)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.text != "<b>hello</b> <code>world</code>" {
		t.Errorf("got text %q", got.text)
	}
	if got.opts == nil || got.opts.ParseMode != tb.ModeHTML || !got.opts.DisableWebPagePreview {
		t.Errorf("got options %+v, want HTML without previews", got.opts)
	}
}

func TestRelay_MarkdownV2ParseMode(t *testing.T) {
	svc, sender := newTestTelegram(t, markup.DialectMarkdownV2, 0, &stubClient{text: "done."})

	if err := svc.relay(context2.Background(), &tb.Chat{ID: 42}, "hi", 7); err != nil {
		t.Fatalf("relay() error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(sender.sent))
	}
	if got := sender.sent[0]; got.text != `done\.` || got.opts.ParseMode != tb.ModeMarkdownV2 || got.opts.ThreadID != 7 {
		t.Errorf("got %q with %+v", got.text, got.opts)
	}
}

func TestRelay_UpstreamFailureNotifiesOnce(t *testing.T) {
	cause := errors.New("connection reset")
	client := &stubClient{err: cause}
	svc, sender := newTestTelegram(t, markup.DialectHTML, 0, client)

	err := svc.relay(context2.Background(), &tb.Chat{ID: 42}, "hi", 0)
	if !errors.Is(err, llm.ErrUpstream) {
		t.Fatalf("got %v, want an upstream error", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("upstream error should wrap the cause, got %v", err)
	}
	if client.calls != 1 {
		t.Errorf("got %d model calls, want exactly 1", client.calls)
	}
	if len(sender.sent) != 1 || sender.sent[0].text != failureMessage {
		t.Errorf("got %+v, want only the failure notice", sender.sent)
	}
}

func TestRelay_UpstreamFailureSilent(t *testing.T) {
	svc, sender := newTestTelegram(t, markup.DialectHTML, 0, &stubClient{err: errors.New("quota")})
	svc.Config.NotifyOnFailure = false

	if err := svc.relay(context2.Background(), &tb.Chat{ID: 42}, "hi", 0); err == nil {
		t.Fatal("expected an error")
	}
	if len(sender.sent) != 0 {
		t.Errorf("got %d messages, want none", len(sender.sent))
	}
}

func TestRelay_CancelledContextSendsNothing(t *testing.T) {
	svc, sender := newTestTelegram(t, markup.DialectHTML, 0, &stubClient{text: "late answer"})

	ctx, cancel := context2.WithCancel(context2.Background())
	cancel()

	if err := svc.relay(ctx, &tb.Chat{ID: 42}, "hi", 0); !errors.Is(err, context2.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("got %d messages, want none", len(sender.sent))
	}
}

func TestDeliver_FallbackAndPartialDelivery(t *testing.T) {
	svc, sender := newTestTelegram(t, markup.DialectHTML, 64, &stubClient{})
	chunks := svc.transcoder.Transcode(strings.Repeat("a", 150))
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	// The second chunk is rejected both formatted and plain.
	sender.fail = func(n int) bool { return n == 1 || n == 2 }

	sent := svc.deliver(&tb.Chat{ID: 42}, chunks, 0)
	if sent != 2 {
		t.Errorf("got %d delivered, want 2", sent)
	}
	if len(sender.sent) != 4 {
		t.Fatalf("got %d send attempts, want 4", len(sender.sent))
	}
	if sender.sent[1].opts.ParseMode != tb.ModeHTML {
		t.Errorf("first attempt should be formatted, got %q", sender.sent[1].opts.ParseMode)
	}
	if sender.sent[2].opts.ParseMode != tb.ModeDefault {
		t.Errorf("fallback should be plain, got %q", sender.sent[2].opts.ParseMode)
	}
	if sender.sent[2].text != chunks[1] || sender.sent[3].text != chunks[2] {
		t.Error("chunks delivered out of order")
	}
}

func TestDeliver_PlainFallbackSucceeds(t *testing.T) {
	svc, sender := newTestTelegram(t, markup.DialectHTML, 0, &stubClient{})
	sender.fail = func(n int) bool { return n == 0 }

	if sent := svc.deliver(&tb.Chat{ID: 42}, []string{"<b>x</b>"}, 0); sent != 1 {
		t.Errorf("got %d delivered, want 1", sent)
	}
	if len(sender.sent) != 2 {
		t.Errorf("got %d send attempts, want 2", len(sender.sent))
	}
}

func TestDeliver_SkipsBlankChunks(t *testing.T) {
	svc, sender := newTestTelegram(t, markup.DialectHTML, 0, &stubClient{})

	if sent := svc.deliver(&tb.Chat{ID: 42}, []string{" \n ", "<pre>\n</pre>", "text"}, 0); sent != 1 {
		t.Errorf("got %d delivered, want 1", sent)
	}
	if len(sender.sent) != 1 || sender.sent[0].text != "text" {
		t.Errorf("got %+v", sender.sent)
	}
}

func TestMention(t *testing.T) {
	user := &tb.User{ID: 99, FirstName: "Ann-Marie", LastName: "<Q>"}

	html, _ := newTestTelegram(t, markup.DialectHTML, 0, &stubClient{})
	if got, want := html.mention(user), `<a href="tg://user?id=99">Ann-Marie &lt;Q&gt;</a>`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	mdv2, _ := newTestTelegram(t, markup.DialectMarkdownV2, 0, &stubClient{})
	if got, want := mdv2.mention(user), `[Ann\-Marie <Q\>](tg://user?id=99)`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if got := html.mention(&tb.User{ID: 1, Username: "annie"}); !strings.Contains(got, ">annie</a>") {
		t.Errorf("got %q, want the username as a fallback", got)
	}
}

func TestIsAllowedUser(t *testing.T) {
	svc, _ := newTestTelegram(t, markup.DialectHTML, 0, &stubClient{})

	if ok, _ := svc.isAllowedUser(&tb.User{ID: 5}); !ok {
		t.Error("every user should be allowed without USER_ID")
	}

	svc.Config.AllowedUserID = 5
	if ok, _ := svc.isAllowedUser(&tb.User{ID: 5}); !ok {
		t.Error("configured user should be allowed")
	}
	if ok, reason := svc.isAllowedUser(&tb.User{ID: 6}); ok || reason != "sender_not_allowed" {
		t.Errorf("got %v %q, want sender_not_allowed", ok, reason)
	}
	if ok, reason := svc.isAllowedUser(nil); ok || reason != "missing_sender" {
		t.Errorf("got %v %q, want missing_sender", ok, reason)
	}
}

func TestGuardHandler_BlocksOtherUsers(t *testing.T) {
	bot, err := tb.NewBot(tb.Settings{Offline: true})
	if err != nil {
		t.Fatalf("NewBot() error: %v", err)
	}
	svc, _ := newTestTelegram(t, markup.DialectHTML, 0, &stubClient{})
	svc.Config.AllowedUserID = 5

	calls := 0
	handler := svc.guardHandler(func(tb.Context) error {
		calls++
		return nil
	})

	update := func(userID int64) tb.Context {
		return bot.NewContext(tb.Update{Message: &tb.Message{
			Sender: &tb.User{ID: userID},
			Chat:   &tb.Chat{ID: userID, Type: tb.ChatPrivate},
			Text:   "hello",
		}})
	}

	if err := handler(update(6)); err != nil {
		t.Errorf("blocked update returned %v", err)
	}
	if calls != 0 {
		t.Errorf("handler ran for a blocked user")
	}
	if err := handler(update(5)); err != nil {
		t.Errorf("allowed update returned %v", err)
	}
	if calls != 1 {
		t.Errorf("got %d handler calls, want 1", calls)
	}
}

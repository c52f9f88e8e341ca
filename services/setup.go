package services

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/requiem-ai/gemrelay/config"
	"github.com/requiem-ai/gemrelay/context"
	"github.com/rs/zerolog/log"
	tb "gopkg.in/telebot.v3"
)

// SetupService fills in missing credentials before the other services are
// configured, and publishes the bot's command menu once they start.
type SetupService struct {
	context.DefaultService

	Config *config.Config

	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

const SETUP_SVC = "setup_svc"

var isInteractive = func() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

var botCommands = []tb.Command{
	{Text: "start", Description: "Say hello"},
	{Text: "help", Description: "Show what the bot can do"},
	{Text: "models", Description: "Show the model and markup in use"},
}

func (svc SetupService) Id() string {
	return SETUP_SVC
}

func (svc *SetupService) Configure(ctx *context.Context) error {
	if err := svc.DefaultService.Configure(ctx); err != nil {
		return err
	}

	if svc.In == nil {
		svc.In = os.Stdin
	}
	if svc.Out == nil {
		svc.Out = os.Stdout
	}
	svc.reader = bufio.NewReader(svc.In)

	if err := svc.runCredentialSetup(); err != nil {
		return err
	}

	if err := svc.Config.Validate(); err != nil {
		return err
	}

	return svc.runUserIDSetup()
}

func (svc *SetupService) Start() error {
	telegram, ok := svc.Service(TELEGRAM_SVC).(*TelegramService)
	if !ok || telegram.Bot == nil {
		return nil
	}

	if err := telegram.Bot.SetCommands(botCommands, tb.CommandScope{Type: tb.CommandScopeDefault}); err != nil {
		log.Warn().Err(err).Msg("failed to register telegram commands")
		return nil
	}
	log.Info().Int("commands", len(botCommands)).Msg("telegram commands and menu updated")
	return nil
}

func (svc *SetupService) runCredentialSetup() error {
	missing := svc.Config.Missing()
	if len(missing) == 0 {
		return nil
	}
	if !isInteractive() {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	fmt.Fprintln(svc.Out, "Gemini relay setup")
	fmt.Fprintln(svc.Out, "Press Enter to keep the current value shown in brackets.")
	fmt.Fprintln(svc.Out, "")
	fmt.Fprintln(svc.Out, "Tips:")
	fmt.Fprintln(svc.Out, "- Create a bot with /newbot in BotFather, then copy the token.")
	fmt.Fprintln(svc.Out, "- Get a Gemini API key from https://aistudio.google.com/apikey.")
	fmt.Fprintln(svc.Out, "")

	token, err := svc.promptRequired("Bot token (from BotFather /newbot)", svc.Config.BotToken)
	if err != nil {
		return err
	}
	apiKey, err := svc.promptRequired("Gemini API key", svc.Config.GeminiAPIKey)
	if err != nil {
		return err
	}

	svc.Config.BotToken = token
	svc.Config.GeminiAPIKey = apiKey

	if err := updateEnvFile(svc.Config.EnvFile, map[string]string{
		"BOT_TOKEN":      token,
		"GEMINI_API_KEY": apiKey,
	}); err != nil {
		return err
	}

	fmt.Fprintf(svc.Out, "Setup saved to %s.\n", svc.Config.EnvFile)
	return nil
}

// runUserIDSetup offers to lock the bot to the account that sends back a
// one-time code. Webhook deployments skip it, since polling would conflict.
func (svc *SetupService) runUserIDSetup() error {
	if svc.Config.AllowedUserID != 0 || svc.Config.UseWebhook() || !isInteractive() {
		return nil
	}

	if !svc.confirm("Restrict the bot to your Telegram account? (y/N): ") {
		return nil
	}

	code, err := generateVerificationCode()
	if err != nil {
		return err
	}

	fmt.Fprintln(svc.Out, "")
	fmt.Fprintln(svc.Out, "Telegram user verification")
	fmt.Fprintln(svc.Out, "Send this code to the bot in Telegram to authorize your user:")
	fmt.Fprintln(svc.Out, code)
	fmt.Fprintln(svc.Out, "")

	userID, err := svc.waitForVerification(code, 5*time.Minute)
	if err != nil {
		return err
	}
	svc.Config.AllowedUserID = userID

	if err := updateEnvFile(svc.Config.EnvFile, map[string]string{
		"USER_ID": strconv.FormatInt(userID, 10),
	}); err != nil {
		return err
	}

	fmt.Fprintf(svc.Out, "USER_ID saved to %s.\n", svc.Config.EnvFile)
	return nil
}

func generateVerificationCode() (string, error) {
	const codeDigits = 6
	const maxDigit = 10

	var sb strings.Builder
	sb.Grow(codeDigits)
	for i := 0; i < codeDigits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(maxDigit))
		if err != nil {
			return "", err
		}
		sb.WriteString(strconv.Itoa(int(n.Int64())))
	}
	return sb.String(), nil
}

func (svc *SetupService) waitForVerification(code string, timeout time.Duration) (int64, error) {
	bot, err := tb.NewBot(tb.Settings{
		Token:  svc.Config.BotToken,
		Poller: &tb.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return 0, err
	}

	done := make(chan int64, 1)
	bot.Handle(tb.OnText, func(c tb.Context) error {
		if strings.TrimSpace(c.Text()) != code {
			return nil
		}
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		select {
		case done <- sender.ID:
		default:
		}
		_ = c.Send("Verification received. You can return to the setup.")
		return nil
	})

	go bot.Start()
	defer bot.Stop()

	select {
	case userID := <-done:
		return userID, nil
	case <-svc.Base().Done():
		return 0, svc.Base().Err()
	case <-time.After(timeout):
		return 0, errors.New("telegram verification timed out")
	}
}

func (svc *SetupService) confirm(prompt string) bool {
	fmt.Fprint(svc.Out, prompt)
	text, _ := svc.reader.ReadString('\n')
	text = strings.TrimSpace(strings.ToLower(text))
	return text == "y" || text == "yes"
}

func (svc *SetupService) promptRequired(label, current string) (string, error) {
	for {
		value, err := svc.promptWithDefault(label, current, "")
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(value) == "" {
			fmt.Fprintln(svc.Out, "Value required.")
			continue
		}
		return value, nil
	}
}

func (svc *SetupService) promptWithDefault(label, current, fallback string) (string, error) {
	display := current
	if display == "" {
		display = fallback
	}

	if display != "" {
		fmt.Fprintf(svc.Out, "%s [%s]: ", label, display)
	} else {
		fmt.Fprintf(svc.Out, "%s: ", label)
	}

	text, err := svc.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && text != "") {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		if current != "" {
			return current, nil
		}
		return fallback, nil
	}

	return text, nil
}

// updateEnvFile rewrites the given keys in place and appends the rest,
// leaving comments and unrelated lines untouched.
func updateEnvFile(path string, updates map[string]string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	lines := []string{}
	seen := make(map[string]bool, len(updates))

	scanner := bufio.NewScanner(strings.NewReader(string(existing)))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			lines = append(lines, line)
			continue
		}

		prefix, key := parseEnvKey(trimmed)
		if value, ok := updates[key]; ok && key != "" {
			lines = append(lines, fmt.Sprintf("%s%s=%s", prefix, key, formatEnvValue(value)))
			seen[key] = true
			continue
		}

		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	keys := make([]string, 0, len(updates))
	for key := range updates {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if seen[key] {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s=%s", key, formatEnvValue(updates[key])))
	}

	output := strings.Join(lines, "\n")
	if output != "" && !strings.HasSuffix(output, "\n") {
		output += "\n"
	}

	return os.WriteFile(path, []byte(output), 0o600)
}

func parseEnvKey(line string) (string, string) {
	trimmed := strings.TrimSpace(line)
	prefix := ""
	if strings.HasPrefix(trimmed, "export ") {
		prefix = "export "
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "export "))
	}

	idx := strings.Index(trimmed, "=")
	if idx <= 0 {
		return "", ""
	}

	return prefix, strings.TrimSpace(trimmed[:idx])
}

func formatEnvValue(value string) string {
	if value == "" {
		return "\"\""
	}

	if !strings.ContainsAny(value, " \t#\"\\") {
		return value
	}

	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

package services

import (
	context2 "context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/requiem-ai/gemrelay/config"
	"github.com/requiem-ai/gemrelay/context"
	"github.com/requiem-ai/gemrelay/llm"
	"github.com/rs/zerolog/log"
)

// FetcherService turns a user's message into the model's raw response.
type FetcherService struct {
	context.DefaultService

	Config *config.Config
	// Client is built from Config on Start unless already set.
	Client llm.Client
}

const FETCHER_SVC = "fetcher_svc"

func (svc FetcherService) Id() string {
	return FETCHER_SVC
}

func (svc *FetcherService) Start() error {
	if svc.Client != nil {
		return nil
	}

	client, err := llm.NewGeminiClient(svc.Base(), svc.Config.GeminiAPIKey, svc.Config.GeminiModel)
	if err != nil {
		return err
	}
	svc.Client = client

	log.Info().Str("client", client.ID()).Str("model", client.Model()).Msg("language model client ready")
	return nil
}

// Fetch makes one attempt at the model. Every failure is an
// *llm.UpstreamError.
func (svc *FetcherService) Fetch(ctx context2.Context, text string) (string, error) {
	if svc.Client == nil {
		return "", &llm.UpstreamError{Client: "none", Err: errors.New("language model client not started")}
	}

	resp, err := svc.Client.Send(ctx, llm.Request{Message: text})
	if err != nil {
		if !errors.Is(err, llm.ErrUpstream) {
			err = &llm.UpstreamError{Client: svc.Client.ID(), Err: err}
		}
		return "", err
	}

	if svc.Config != nil && svc.Config.ResponseDumpPath != "" {
		if err := dumpResponse(svc.Config.ResponseDumpPath, resp.Text); err != nil {
			log.Warn().Err(err).Str("path", svc.Config.ResponseDumpPath).Msg("failed to dump model response")
		}
	}

	return resp.Text, nil
}

// dumpResponse replaces the file at path with the latest raw response.
func dumpResponse(path, text string) error {
	path = strings.TrimSpace(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, "response_*.md")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.WriteString(text); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpFile.Name(), path)
}

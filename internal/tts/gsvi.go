package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GSVIProvider fetches synthesized audio from a GSVI-compatible HTTP
// endpoint: GET {base}/tts?text=...&character=...&emotion=...
type GSVIProvider struct {
	apiBase string
	client  *http.Client
}

func NewGSVIProvider(apiBase string) *GSVIProvider {
	return &GSVIProvider{
		apiBase: strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *GSVIProvider) Synthesize(ctx context.Context, text string, params Params) ([]byte, error) {
	u, err := url.Parse(p.apiBase + "/tts")
	if err != nil {
		return nil, fmt.Errorf("parse tts url: %w", err)
	}
	q := u.Query()
	q.Set("text", text)
	if params.Character != "" {
		q.Set("character", params.Character)
	}
	if params.Emotion != "" {
		q.Set("emotion", params.Emotion)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return nil, fmt.Errorf("tts http status %d: %s", res.StatusCode, string(body))
	}

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts backend returned empty audio")
	}
	return audio, nil
}

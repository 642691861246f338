// Package azure provides a tts.Provider backed by the Azure Cognitive
// Services speech synthesis REST API.
package azure

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kaiwa-ai/uketsuke/pkg/provider/tts"
)

const (
	endpointFmt  = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"
	outputFormat = "riff-8khz-16bit-mono-pcm"
	sampleRate   = 8000
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client, used by tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithEndpoint overrides the synthesis endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements tts.Provider against the Azure REST API.
type Provider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// New creates an Azure Provider for the given region. apiKey and
// region must be non-empty.
func New(apiKey, region string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("azure: apiKey must not be empty")
	}
	if region == "" {
		return nil, errors.New("azure: region must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   fmt.Sprintf(endpointFmt, region),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if req.Text == "" {
		return tts.Audio{}, errors.New("azure: text must not be empty")
	}

	body := buildSSML(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(body))
	if err != nil {
		return tts.Audio{}, fmt.Errorf("azure: build request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", outputFormat)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("azure: synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tts.Audio{}, fmt.Errorf("azure: synthesize: status %d: %s", resp.StatusCode, msg)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("azure: read audio: %w", err)
	}
	pcm, err := StripWAVHeader(wav)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("azure: parse audio: %w", err)
	}
	return tts.Audio{PCM: pcm, SampleRate: sampleRate}, nil
}

// buildSSML wraps the text in the full SSML document the service
// expects. Text may already contain break elements.
func buildSSML(req tts.Request) string {
	voice := req.Voice
	if voice == "" {
		voice = tts.DefaultVoice
	}
	style := req.Style
	if style == "" {
		style = tts.DefaultStyle
	}
	rate := req.Rate
	if rate == "" {
		rate = tts.DefaultRate
	}
	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='ja-JP'><voice name='%s' style='%s'><prosody rate='%s'>%s</prosody></voice></speak>`,
		voice, style, rate, req.Text,
	)
}

// StripWAVHeader returns the PCM payload of a RIFF/WAVE byte stream by
// locating the data chunk. Raw input without a RIFF magic passes
// through unchanged.
func StripWAVHeader(b []byte) ([]byte, error) {
	if len(b) < 12 || !bytes.Equal(b[:4], []byte("RIFF")) {
		return b, nil
	}
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		off += 8
		if id == "data" {
			if off+size > len(b) {
				size = len(b) - off
			}
			return b[off : off+size], nil
		}
		off += size
	}
	return nil, errors.New("no data chunk in RIFF stream")
}

package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/streed/snap-notes/internal/logger"
)

// Ollama calls the /api/generate endpoint of a local Ollama server.
type Ollama struct {
	endpoint    string
	model       string
	temperature float32
	maxTokens   int
	client      *http.Client
}

func NewOllama(opts Options) *Ollama {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &Ollama{
		endpoint:    strings.TrimRight(endpoint, "/"),
		model:       opts.Model,
		temperature: 0.3,
		maxTokens:   800,
		client:      &http.Client{Timeout: opts.Timeout},
	}
}

func (o *Ollama) Name() string { return "ollama/" + o.model }

func (o *Ollama) Generate(ctx context.Context, prompt string, images ...[]byte) (string, error) {
	payload := map[string]interface{}{
		"model":       o.model,
		"prompt":      prompt,
		"temperature": o.temperature,
		"stream":      false,
		"options": map[string]interface{}{
			"num_predict": o.maxTokens,
		},
	}
	if len(images) > 0 {
		encoded := make([]string, len(images))
		for i, img := range images {
			encoded[i] = base64.StdEncoding.EncodeToString(img)
		}
		payload["images"] = encoded
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := o.endpoint + "/api/generate"
	logger.Debug("Requesting generation from %s with model %s", apiURL, o.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: "ollama", Err: err, Unreachable: true}
	}
	defer resp.Body.Close()

	logger.Debug("Ollama response status: %d, time: %v", resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			Provider:    "ollama",
			Status:      resp.StatusCode,
			Err:         fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			Unreachable: resp.StatusCode == http.StatusNotFound || resp.StatusCode >= 500,
		}
	}

	var result struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return strings.TrimSpace(result.Response), nil
}

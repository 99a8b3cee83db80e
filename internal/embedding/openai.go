package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIProvider generates embeddings using OpenAI's API. Text goes
// straight to the embeddings endpoint. Images are captioned with a
// vision model first and the caption is embedded, which keeps image
// and text queries in the same vector space.
type OpenAIProvider struct {
	apiKey       string
	embedModel   string
	captionModel string
	baseURL      string
	client       *http.Client
	retry        RetryConfig
}

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(apiKey, embedModel, captionModel string, retry RetryConfig) *OpenAIProvider {
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	if captionModel == "" {
		captionModel = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		apiKey:       apiKey,
		embedModel:   embedModel,
		captionModel: captionModel,
		baseURL:      defaultBaseURL,
		client:       &http.Client{},
		retry:        retry,
	}
}

// SetBaseURL overrides the API base URL. Used in tests.
func (p *OpenAIProvider) SetBaseURL(url string) { p.baseURL = strings.TrimSuffix(url, "/") }

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type embedRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// EmbedText generates an embedding via the embeddings endpoint.
func (p *OpenAIProvider) EmbedText(ctx context.Context, text string) (pgvector.Vector, error) {
	body, err := json.Marshal(embedRequest{
		Input:      text,
		Model:      p.embedModel,
		Dimensions: Dimensions,
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("marshaling request: %w", err)
	}

	var result embedResponse
	err = withRetry(ctx, p.retry, func(ctx context.Context) error {
		return p.post(ctx, "/embeddings", body, &result)
	})
	if err != nil {
		return pgvector.Vector{}, err
	}

	if len(result.Data) == 0 {
		return pgvector.Vector{}, fmt.Errorf("%w: no embeddings returned", ErrProvider)
	}
	return pgvector.NewVector(result.Data[0].Embedding), nil
}

// EmbedImage captions the image and embeds the caption.
func (p *OpenAIProvider) EmbedImage(ctx context.Context, data []byte) (pgvector.Vector, error) {
	name, description, err := p.Caption(ctx, data)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return p.EmbedText(ctx, strings.TrimSpace(name+" "+description))
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const captionPrompt = "Please analyze this image and provide two things:\n" +
	"1. A four-word name that summarizes the image contents (start with 'Name:')\n" +
	"2. A detailed description of what you see in the image (start with 'Description:')"

// Caption asks the vision model for a short name and description of the image.
func (p *OpenAIProvider) Caption(ctx context.Context, data []byte) (string, string, error) {
	encoded := base64.StdEncoding.EncodeToString(data)
	body, err := json.Marshal(chatRequest{
		Model: p.captionModel,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: captionPrompt},
				{Type: "image_url", ImageURL: &chatImageURL{
					URL:    "data:image/jpeg;base64," + encoded,
					Detail: "high",
				}},
			},
		}},
		MaxTokens:   300,
		Temperature: 0.1,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshaling request: %w", err)
	}

	var result chatResponse
	err = withRetry(ctx, p.retry, func(ctx context.Context) error {
		return p.post(ctx, "/chat/completions", body, &result)
	})
	if err != nil {
		return "", "", err
	}

	if len(result.Choices) == 0 {
		return "", "", fmt.Errorf("%w: no caption returned", ErrProvider)
	}
	name, description, ok := ParseCaption(result.Choices[0].Message.Content)
	if !ok {
		return "", "", fmt.Errorf("%w: unparseable caption", ErrProvider)
	}
	return name, description, nil
}

var (
	captionNameRe = regexp.MustCompile(`Name:\s*(.+?)(?:\n|$)`)
	captionDescRe = regexp.MustCompile(`Description:\s*(.+?)(?:\n|$)`)
	asteriskTrim  = regexp.MustCompile(`^\*+\s*|\s*\*+$`)
)

// ParseCaption extracts the "Name:" and "Description:" lines from the
// vision model's reply, stripping markdown asterisks.
func ParseCaption(content string) (name, description string, ok bool) {
	nm := captionNameRe.FindStringSubmatch(content)
	dm := captionDescRe.FindStringSubmatch(content)
	if nm == nil || dm == nil {
		return "", "", false
	}
	name = asteriskTrim.ReplaceAllString(strings.TrimSpace(nm[1]), "")
	description = asteriskTrim.ReplaceAllString(strings.TrimSpace(dm[1]), "")
	return name, description, true
}

// post sends a JSON request and decodes the response, classifying
// failures for the retry loop: network errors and 429/5xx are
// transient, everything else is permanent.
func (p *OpenAIProvider) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling OpenAI: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}
	if resp.StatusCode != http.StatusOK {
		return permanent(fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, truncate(respBody, 200)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return permanent(fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

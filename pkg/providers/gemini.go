package providers

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// Sampling parameters are fixed per request. Tunables, not a contract.
const (
	geminiTemperature     = 0.7
	geminiTopP            = 0.95
	geminiTopK            = 40
	geminiMaxOutputTokens = 1024
)

// GeminiProvider talks to the Gemini API through the official genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &ModelBackendError{Message: err.Error()}
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Chat builds a role-tagged conversation (user turns stay "user", prior
// assistant turns become "model") and issues a single GenerateContent call.
// The first candidate's text is returned verbatim; all downstream parsing
// belongs to the action interpreter and the sanitizer.
func (p *GeminiProvider) Chat(ctx context.Context, history []Message, userText, system string) (*LLMResponse, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(userText, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](geminiTemperature),
		TopP:            genai.Ptr[float32](geminiTopP),
		TopK:            genai.Ptr[float32](geminiTopK),
		MaxOutputTokens: geminiMaxOutputTokens,
	}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, &ModelBackendError{Message: err.Error()}
	}

	text := resp.Text()
	if text == "" && len(resp.Candidates) == 0 {
		return nil, &ModelBackendError{Message: "no candidates in response"}
	}

	out := &LLMResponse{Content: text}
	if resp.UsageMetadata != nil {
		out.Usage = &Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

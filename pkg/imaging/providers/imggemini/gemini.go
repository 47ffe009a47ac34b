// Package imggemini implements the imaging port on Google Gemini
// multimodal models via google.golang.org/genai.
package imggemini

import (
	"context"
	"os"
	"time"

	"google.golang.org/genai"

	"github.com/relightlabs/relight/pkg/imaging"
)

const defaultModel = "gemini-2.5-flash-image"

// ProviderOption configures the Gemini provider
type ProviderOption func(*Provider)

// WithModel sets the default model for requests that don't name one
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithVertexAI routes calls through the Vertex AI backend
func WithVertexAI(project, location string) ProviderOption {
	return func(p *Provider) {
		p.project = project
		p.location = location
		p.useVertexAI = true
	}
}

// Provider implements imaging.Service for Gemini.
type Provider struct {
	client      *genai.Client
	apiKey      string
	model       string
	project     string
	location    string
	useVertexAI bool
}

// New creates a Gemini-backed imaging provider.
func New(ctx context.Context, apiKey string, opts ...ProviderOption) (*Provider, error) {
	p := &Provider{
		apiKey: apiKey,
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.apiKey == "" {
		p.apiKey = os.Getenv("GEMINI_API_KEY")
	}

	config := &genai.ClientConfig{}
	if p.useVertexAI {
		config.Backend = genai.BackendVertexAI
		config.Project = p.project
		config.Location = p.location
	} else {
		config.APIKey = p.apiKey
		config.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, WrapError(err, ErrMissingAPIKey).
			WithDetail("error", "failed to create Gemini client")
	}
	p.client = client
	return p, nil
}

// Process implements imaging.Service.
func (p *Provider) Process(ctx context.Context, req imaging.Request) (imaging.Result, error) {
	if err := imaging.ValidateRequest(req); err != nil {
		return imaging.Result{}, err
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}

	parts := []*genai.Part{genai.NewPartFromText(req.StagePrompt)}
	if len(req.ImageBytes) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.ImageBytes, mimeType))
	} else {
		parts = append(parts, genai.NewPartFromURI(req.ImageRef, mimeType))
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.ExpectImage {
		config.ResponseModalities = []string{"TEXT", "IMAGE"}
	}

	model := req.ModelID
	if model == "" {
		model = p.model
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return imaging.Result{}, ParseGeminiError(err).
			WithDetail("model", model)
	}

	result := imaging.Result{Latency: time.Since(start)}
	if resp.UsageMetadata != nil {
		result.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			switch {
			case part.Text != "":
				result.Structured += part.Text
			case part.InlineData != nil:
				result.GeneratedImage = part.InlineData.Data
			}
		}
	}

	if result.Structured == "" && len(result.GeneratedImage) == 0 {
		return imaging.Result{}, imaging.NewEmptyResponse().
			WithDetail("model", model)
	}
	if req.ExpectImage && len(result.GeneratedImage) == 0 {
		return imaging.Result{}, errorRegistry.New(ErrNoImageReturned).
			WithDetail("model", model)
	}
	return result, nil
}

// Package imgopenai implements the imaging port on OpenAI: chat
// completions with image input for analysis and validation stages,
// and the Images API for stages that generate an image.
package imgopenai

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/relightlabs/relight/pkg/imaging"
)

const (
	defaultChatModel  = "gpt-4o"
	defaultImageModel = "gpt-image-1"

	// maxFetchBytes caps how much of a referenced image is downloaded
	// before it is handed to the Images API.
	maxFetchBytes = 32 << 20
)

// ProviderOption configures the OpenAI provider
type ProviderOption func(*Provider)

// WithChatModel sets the model used for analysis/validation requests
func WithChatModel(model string) ProviderOption {
	return func(p *Provider) {
		p.chatModel = model
	}
}

// WithImageModel sets the model used for image-generation requests
func WithImageModel(model string) ProviderOption {
	return func(p *Provider) {
		p.imageModel = model
	}
}

// Provider implements imaging.Service for OpenAI.
type Provider struct {
	client     openai.Client
	httpClient *http.Client
	apiKey     string
	chatModel  string
	imageModel string
}

// New creates an OpenAI-backed imaging provider.
func New(apiKey string, opts ...ProviderOption) *Provider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	p := &Provider{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		httpClient: http.DefaultClient,
		apiKey:     apiKey,
		chatModel:  defaultChatModel,
		imageModel: defaultImageModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process implements imaging.Service.
func (p *Provider) Process(ctx context.Context, req imaging.Request) (imaging.Result, error) {
	if p.apiKey == "" {
		return imaging.Result{}, errorRegistry.New(ErrMissingAPIKey)
	}
	if err := imaging.ValidateRequest(req); err != nil {
		return imaging.Result{}, err
	}

	if req.ExpectImage {
		return p.editImage(ctx, req)
	}
	return p.describeImage(ctx, req)
}

// describeImage runs an analysis/validation prompt over the image via
// a vision chat completion.
func (p *Provider) describeImage(ctx context.Context, req imaging.Request) (imaging.Result, error) {
	model := req.ModelID
	if model == "" {
		model = p.chatModel
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.StagePrompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: p.imageURL(req),
		}),
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
		Model:       model,
		Temperature: openai.Float(req.Temperature),
	}

	start := time.Now()
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return imaging.Result{}, ParseOpenAIError(err).
			WithDetail("model", model)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return imaging.Result{}, imaging.NewEmptyResponse().
			WithDetail("model", model)
	}

	return imaging.Result{
		Structured: completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
		Latency:    time.Since(start),
	}, nil
}

// editImage runs the stage prompt through the Images API against the
// input image and returns the generated result. The Images API takes
// no URL input, so a request carrying only a reference downloads it
// first.
func (p *Provider) editImage(ctx context.Context, req imaging.Request) (imaging.Result, error) {
	imageBytes := req.ImageBytes
	mimeType := req.MimeType
	if len(imageBytes) == 0 {
		if req.ImageRef == "" {
			return imaging.Result{}, errorRegistry.New(ErrImageBytesRequired)
		}
		data, detected, err := p.fetchImageRef(ctx, req.ImageRef)
		if err != nil {
			return imaging.Result{}, err
		}
		imageBytes = data
		if mimeType == "" {
			mimeType = detected
		}
	}

	model := req.ModelID
	if model == "" {
		model = p.imageModel
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	params := openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(imageBytes), "input.png", mimeType),
		},
		Prompt: req.StagePrompt,
		Model:  openai.ImageModel(model),
	}

	start := time.Now()
	resp, err := p.client.Images.Edit(ctx, params)
	if err != nil {
		return imaging.Result{}, ParseOpenAIError(err).
			WithDetail("model", model)
	}
	if len(resp.Data) == 0 {
		return imaging.Result{}, imaging.NewEmptyResponse().
			WithDetail("model", model)
	}

	result := imaging.Result{
		TokensUsed: int(resp.Usage.TotalTokens),
		Latency:    time.Since(start),
	}

	img := resp.Data[0]
	switch {
	case img.B64JSON != "":
		data, decodeErr := base64.StdEncoding.DecodeString(img.B64JSON)
		if decodeErr != nil {
			return imaging.Result{}, WrapError(decodeErr, ErrInvalidImagePayload)
		}
		result.GeneratedImage = data
	case img.URL != "":
		result.GeneratedImageRef = img.URL
	default:
		return imaging.Result{}, errorRegistry.New(ErrInvalidImagePayload)
	}
	return result, nil
}

// fetchImageRef materializes a referenced image as bytes plus a MIME
// type. HTTP(S) URLs are downloaded; file URLs and bare paths are read
// from disk. Any other scheme is rejected as unsupported.
func (p *Provider) fetchImageRef(ctx context.Context, ref string) ([]byte, string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, "", errorRegistry.NewWithCause(ErrUnsupportedImageRef, err).
			WithDetail("ref", ref)
	}

	switch u.Scheme {
	case "http", "https":
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, "", errorRegistry.NewWithCause(ErrImageFetchFailed, err).
				WithDetail("ref", ref)
		}
		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			return nil, "", errorRegistry.NewWithCause(ErrImageFetchFailed, err).
				WithDetail("ref", ref)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, "", errorRegistry.New(ErrImageFetchFailed).
				WithDetail("ref", ref).
				WithDetail("status", resp.Status)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
		if err != nil {
			return nil, "", errorRegistry.NewWithCause(ErrImageFetchFailed, err).
				WithDetail("ref", ref)
		}
		mimeType := resp.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		return data, mimeType, nil

	case "file", "":
		path := u.Path
		if u.Scheme == "" {
			path = ref
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", errorRegistry.NewWithCause(ErrImageFetchFailed, err).
				WithDetail("ref", ref)
		}
		return data, http.DetectContentType(data), nil

	default:
		return nil, "", errorRegistry.New(ErrUnsupportedImageRef).
			WithDetail("ref", ref).
			WithDetail("scheme", u.Scheme)
	}
}

// imageURL yields a URL the chat API accepts: the reference as-is, or
// the bytes inlined as a data URL.
func (p *Provider) imageURL(req imaging.Request) string {
	if req.ImageRef != "" {
		return req.ImageRef
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType,
		base64.StdEncoding.EncodeToString(req.ImageBytes))
}

// Package imaging is the port to the external AI image-processing
// service. The control plane treats the call as opaque: it carries a
// stage prompt and an image in, and a structured result (and possibly
// a generated image) out. It never interprets image content.
package imaging

import (
	"context"
	"time"
)

// Request is one stage's call to the image service. Exactly one of
// ImageRef or ImageBytes should be set.
type Request struct {
	ImageRef    string
	ImageBytes  []byte
	MimeType    string
	StagePrompt string
	Temperature float64
	ModelID     string

	// ExpectImage asks the provider for a generated image in addition
	// to the structured result (editing stages set it, analysis and
	// validation do not).
	ExpectImage bool
}

// Result is the service's response.
type Result struct {
	// Structured is the model's textual result: analysis findings,
	// plan material, or a validation report, depending on the prompt.
	Structured string

	GeneratedImage    []byte
	GeneratedImageRef string

	TokensUsed int
	Latency    time.Duration
}

// Service executes image-processing calls. Implementations classify
// their failures into the errx taxonomy so the rate limiter can tell
// transient from permanent.
type Service interface {
	Process(ctx context.Context, req Request) (Result, error)
}

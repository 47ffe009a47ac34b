// Package restorer executes the pipeline's delegated stages against
// the external image service. It owns prompt construction, response
// parsing, rate limiting of the external calls, and hosting of the
// generated images.
package restorer

import (
	"context"
	"fmt"
	"time"

	"github.com/relightlabs/relight/pkg/auditx"
	"github.com/relightlabs/relight/pkg/imagestore"
	"github.com/relightlabs/relight/pkg/imaging"
	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/logx"
	"github.com/relightlabs/relight/pkg/pipeline"
	"github.com/relightlabs/relight/pkg/plan"
	"github.com/relightlabs/relight/pkg/qc"
	"github.com/relightlabs/relight/pkg/ratex"
)

const (
	defaultTemperature = 0.7
	outputContentType  = "image/png"
)

// Restorer implements pipeline.Stager.
type Restorer struct {
	imaging imaging.Service
	images  imagestore.Store
	limiter *ratex.Limiter
	audit   *auditx.Log
	logger  *logx.Logger
	modelID string
}

// Option configures a Restorer.
type Option func(*Restorer)

// WithDefaultModel sets the model used when neither the analysis nor
// the plan names one.
func WithDefaultModel(modelID string) Option {
	return func(r *Restorer) {
		r.modelID = modelID
	}
}

// New creates a stage executor over the given image service, image
// store, and rate limiter. Every completed outbound call lands in the
// audit log as an external_call event.
func New(svc imaging.Service, images imagestore.Store, limiter *ratex.Limiter, audit *auditx.Log, logger *logx.Logger, opts ...Option) *Restorer {
	r := &Restorer{
		imaging: svc,
		images:  images,
		limiter: limiter,
		audit:   audit,
		logger:  logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Analyze inspects the input image and reports defects.
func (r *Restorer) Analyze(ctx context.Context, job pipeline.Job) (pipeline.Analysis, error) {
	result, err := r.generate(ctx, job.SessionID, imaging.Request{
		ImageRef:    job.InputRef,
		StagePrompt: analysisPrompt(job.Mode),
		Temperature: 0.2,
		ModelID:     r.modelID,
	})
	if err != nil {
		return pipeline.Analysis{}, err
	}
	return parseAnalysis(result.Structured), nil
}

// BuildPlan turns the analysis into an executable plan. When the
// model's plan is unusable the mode defaults apply.
func (r *Restorer) BuildPlan(ctx context.Context, job pipeline.Job, analysis pipeline.Analysis) (plan.Plan, error) {
	result, err := r.generate(ctx, job.SessionID, imaging.Request{
		ImageRef:    job.InputRef,
		StagePrompt: planningPrompt(job.Mode, analysis.Summary, analysis.DetectedDefects),
		Temperature: 0.3,
		ModelID:     r.modelID,
	})
	if err != nil {
		return plan.Plan{}, err
	}

	modelID := analysis.RecommendedModel
	if modelID == "" {
		modelID = r.modelID
	}

	resp, ok := parsePlanSteps(result.Structured)
	if !ok {
		r.logger.WithField("job_id", job.ID).
			Warn("restorer: unusable plan response, falling back to mode defaults")
		return defaultPlan(job.Mode, modelID), nil
	}

	p := plan.Plan{
		ModelID:     modelID,
		Temperature: resp.Temperature,
	}
	if p.Temperature <= 0 || p.Temperature > 1 {
		p.Temperature = defaultTemperature
	}
	for i, s := range resp.Steps {
		p.Steps = append(p.Steps, plan.Step{
			Number:      i + 1,
			Name:        s.Name,
			Type:        stepType(s.Type),
			Prompt:      s.Prompt,
			Criticality: s.Criticality,
		})
	}
	return p, nil
}

// Edit runs the plan against the image service and hosts the result.
func (r *Restorer) Edit(ctx context.Context, job pipeline.Job, p plan.Plan) (pipeline.EditResult, error) {
	started := time.Now()
	result, err := r.generate(ctx, job.SessionID, imaging.Request{
		ImageRef:    job.InputRef,
		StagePrompt: editPrompt(p),
		Temperature: p.Temperature,
		ModelID:     p.ModelID,
		ExpectImage: true,
	})
	if err != nil {
		return pipeline.EditResult{}, err
	}

	edit := pipeline.EditResult{
		OutputBytes: result.GeneratedImage,
		TokensUsed:  result.TokensUsed,
		Latency:     time.Since(started),
	}

	switch {
	case len(result.GeneratedImage) > 0:
		url, err := r.upload(ctx, job, result.GeneratedImage)
		if err != nil {
			return pipeline.EditResult{}, err
		}
		edit.OutputRef = url
	case result.GeneratedImageRef != "":
		// Provider already hosts the output.
		edit.OutputRef = result.GeneratedImageRef
	default:
		return pipeline.EditResult{}, restorerErrors.New(ErrNoOutputImage).
			WithDetail("model_id", p.ModelID)
	}

	return edit, nil
}

// Validate scores the edit output against the original.
func (r *Restorer) Validate(ctx context.Context, job pipeline.Job, edit pipeline.EditResult) (qc.ValidationResult, error) {
	req := imaging.Request{
		StagePrompt: validationPrompt(),
		Temperature: 0.1,
		ModelID:     r.modelID,
	}
	if len(edit.OutputBytes) > 0 {
		req.ImageBytes = edit.OutputBytes
		req.MimeType = outputContentType
	} else {
		req.ImageRef = edit.OutputRef
	}

	result, err := r.generate(ctx, job.SessionID, req)
	if err != nil {
		return qc.ValidationResult{}, err
	}
	return parseValidation(result.Structured)
}

func (r *Restorer) generate(ctx context.Context, sessionID kernel.SessionID, req imaging.Request) (imaging.Result, error) {
	if err := imaging.ValidateRequest(req); err != nil {
		return imaging.Result{}, err
	}
	return ratex.Execute(ctx, r.limiter, ratex.ClassGeneration, func(ctx context.Context) (imaging.Result, error) {
		started := time.Now()
		result, err := r.imaging.Process(ctx, req)
		r.recordCall(ctx, sessionID, ratex.ClassGeneration, time.Since(started), err)
		return result, err
	})
}

func (r *Restorer) upload(ctx context.Context, job pipeline.Job, data []byte) (string, error) {
	key := fmt.Sprintf("jobs/%s/attempt-%d.png", job.ID, job.RetryCount+1)
	return ratex.Execute(ctx, r.limiter, ratex.ClassLargeFile, func(ctx context.Context) (string, error) {
		started := time.Now()
		url, err := r.images.Upload(ctx, key, data, imagestore.Meta{
			ContentType: outputContentType,
			Metadata: map[string]string{
				"job_id":     job.ID.String(),
				"session_id": job.SessionID.String(),
			},
		})
		r.recordCall(ctx, job.SessionID, ratex.ClassLargeFile, time.Since(started), err)
		return url, err
	})
}

// recordCall appends an external_call event for one completed
// outbound call (one per attempt, excluding limiter waits). Audit
// failures are logged, never surfaced: the call's outcome stands.
func (r *Restorer) recordCall(ctx context.Context, sessionID kernel.SessionID, class ratex.Class, elapsed time.Duration, callErr error) {
	payload := map[string]any{
		auditx.KeyAPIClass:   string(class),
		auditx.KeyDurationMS: float64(elapsed) / float64(time.Millisecond),
	}
	if callErr != nil {
		payload[auditx.KeyError] = callErr.Error()
	}
	if err := r.audit.Record(ctx, sessionID, auditx.EventExternalCall, payload, nil); err != nil {
		r.logger.WithError(err).WithField("session_id", sessionID).
			Warn("restorer: audit append failed")
	}
}

// defaultPlan is the fallback when planning produced nothing usable.
func defaultPlan(mode kernel.Mode, modelID string) plan.Plan {
	p := plan.Plan{
		ModelID:     modelID,
		Temperature: defaultTemperature,
	}
	switch mode {
	case kernel.ModeEnhance:
		p.Steps = []plan.Step{
			{Number: 1, Name: "enhance detail", Type: plan.StepEnhancement,
				Prompt: "Enhance sharpness, contrast, and tonal range without altering content.", Criticality: 4},
			{Number: 2, Name: "final sharpening", Type: plan.StepSharpening,
				Prompt: "Apply light sharpening suitable for print.", Criticality: 2},
		}
	case kernel.ModeRemake:
		p.Steps = []plan.Step{
			{Number: 1, Name: "repair structure", Type: plan.StepDefectRemoval,
				Prompt: "Repair tears, scratches, and missing regions, reconstructing from context.", Criticality: 5},
			{Number: 2, Name: "restore faces", Type: plan.StepFaceRestoration,
				Prompt: "Restore facial detail while preserving identity exactly.", Criticality: 5},
			{Number: 3, Name: "rebuild color", Type: plan.StepColorCorrection,
				Prompt: "Rebuild natural period-appropriate color and tone.", Criticality: 3},
		}
	default:
		p.Steps = []plan.Step{
			{Number: 1, Name: "remove defects", Type: plan.StepDefectRemoval,
				Prompt: "Remove scratches, stains, and fading while keeping original detail.", Criticality: 5},
			{Number: 2, Name: "correct color", Type: plan.StepColorCorrection,
				Prompt: "Correct color casts and restore faded tones.", Criticality: 3},
			{Number: 3, Name: "final enhancement", Type: plan.StepEnhancement,
				Prompt: "Lightly enhance overall clarity.", Criticality: 1},
		}
	}
	return p
}

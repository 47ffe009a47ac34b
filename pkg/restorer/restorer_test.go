package restorer_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relightlabs/relight/pkg/auditx"
	"github.com/relightlabs/relight/pkg/imagestore"
	"github.com/relightlabs/relight/pkg/imaging"
	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/logx"
	"github.com/relightlabs/relight/pkg/pipeline"
	"github.com/relightlabs/relight/pkg/plan"
	"github.com/relightlabs/relight/pkg/ratex"
	"github.com/relightlabs/relight/pkg/restorer"
)

type fakeImaging struct {
	mu    sync.Mutex
	calls []imaging.Request
	fn    func(req imaging.Request) (imaging.Result, error)
}

func (f *fakeImaging) Process(_ context.Context, req imaging.Request) (imaging.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(req)
}

type fakeStore struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeStore) Upload(_ context.Context, key string, data []byte, _ imagestore.Meta) (string, error) {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return "https://images.test/" + key, nil
}

func (f *fakeStore) PresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://images.test/" + key + "?signed", nil
}

func newRestorer(svc imaging.Service, store imagestore.Store) *restorer.Restorer {
	r, _ := newAuditedRestorer(svc, store)
	return r
}

func newAuditedRestorer(svc imaging.Service, store imagestore.Store) (*restorer.Restorer, *auditx.Log) {
	logger := logx.NewLogger(&logx.Config{Level: logx.LevelOff})
	limiter := ratex.New(ratex.Config{
		RequestsPerWindow: 1000,
		Window:            time.Second,
		MaxAttempts:       1,
	}, logger)
	audit, err := auditx.New(8, logger)
	if err != nil {
		panic(err)
	}
	return restorer.New(svc, store, limiter, audit, logger, restorer.WithDefaultModel("img-edit-1")), audit
}

func testJob() pipeline.Job {
	return pipeline.Job{
		ID:        kernel.NewJobID(),
		SessionID: kernel.NewSessionID(),
		Mode:      kernel.ModeRestore,
		InputRef:  "file:///in.png",
	}
}

func TestAnalyze_ParsesFencedJSON(t *testing.T) {
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		return imaging.Result{Structured: "Here is my assessment:\n```json\n" +
			`{"summary": "faded print with scratches", "detected_defects": ["scratches", "fading"], "recommended_model": "img-edit-2"}` +
			"\n```"}, nil
	}}
	r := newRestorer(svc, &fakeStore{})

	analysis, err := r.Analyze(context.Background(), testJob())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Summary != "faded print with scratches" {
		t.Fatalf("summary = %q", analysis.Summary)
	}
	if len(analysis.DetectedDefects) != 2 {
		t.Fatalf("defects = %v", analysis.DetectedDefects)
	}
	if analysis.RecommendedModel != "img-edit-2" {
		t.Fatalf("recommended model = %q", analysis.RecommendedModel)
	}
}

func TestAnalyze_NonJSONFallsBackToRawSummary(t *testing.T) {
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		return imaging.Result{Structured: "The photo shows heavy water damage."}, nil
	}}
	r := newRestorer(svc, &fakeStore{})

	analysis, err := r.Analyze(context.Background(), testJob())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Summary != "The photo shows heavy water damage." {
		t.Fatalf("summary = %q", analysis.Summary)
	}
}

func TestBuildPlan_UsesModelSteps(t *testing.T) {
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		return imaging.Result{Structured: `{"temperature": 0.6, "steps": [
			{"name": "fix tears", "type": "defect_removal", "prompt": "repair the tears", "criticality": 9},
			{"name": "tone", "type": "mystery_type", "prompt": "balance tones", "criticality": 0}
		]}`}, nil
	}}
	r := newRestorer(svc, &fakeStore{})

	p, err := r.BuildPlan(context.Background(), testJob(), pipeline.Analysis{
		Summary:          "torn photo",
		RecommendedModel: "img-edit-2",
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if p.ModelID != "img-edit-2" {
		t.Fatalf("model = %q", p.ModelID)
	}
	if p.Temperature != 0.6 {
		t.Fatalf("temperature = %v", p.Temperature)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("steps = %d", len(p.Steps))
	}
	if p.Steps[0].Number != 1 || p.Steps[1].Number != 2 {
		t.Fatalf("step numbers = %d, %d", p.Steps[0].Number, p.Steps[1].Number)
	}
	if p.Steps[0].Criticality != 5 {
		t.Fatalf("criticality not clamped: %d", p.Steps[0].Criticality)
	}
	if p.Steps[1].Criticality != 1 {
		t.Fatalf("criticality not floored: %d", p.Steps[1].Criticality)
	}
	if p.Steps[1].Type != plan.StepEnhancement {
		t.Fatalf("unknown step type = %q", p.Steps[1].Type)
	}
}

func TestBuildPlan_FallsBackToModeDefaults(t *testing.T) {
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		return imaging.Result{Structured: "I could not produce a plan, sorry."}, nil
	}}
	r := newRestorer(svc, &fakeStore{})

	p, err := r.BuildPlan(context.Background(), testJob(), pipeline.Analysis{Summary: "damaged"})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(p.Steps) == 0 {
		t.Fatal("expected fallback steps")
	}
	if p.Steps[0].Type != plan.StepDefectRemoval {
		t.Fatalf("restore fallback starts with %q", p.Steps[0].Type)
	}
	if p.ModelID != "img-edit-1" {
		t.Fatalf("model = %q", p.ModelID)
	}
	if p.Temperature != 0.7 {
		t.Fatalf("temperature = %v", p.Temperature)
	}
}

func TestEdit_UploadsGeneratedImage(t *testing.T) {
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		if !req.ExpectImage {
			t.Error("edit request should expect an image")
		}
		return imaging.Result{GeneratedImage: []byte("png-bytes"), TokensUsed: 321}, nil
	}}
	store := &fakeStore{}
	r := newRestorer(svc, store)

	job := testJob()
	job.RetryCount = 1
	p := plan.Plan{ModelID: "img-edit-1", Temperature: 0.5, Steps: []plan.Step{
		{Number: 1, Name: "repair", Type: plan.StepDefectRemoval, Prompt: "repair", Criticality: 5},
	}}

	edit, err := r.Edit(context.Background(), job, p)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if len(store.keys) != 1 {
		t.Fatalf("uploads = %d, want 1", len(store.keys))
	}
	wantKey := "jobs/" + job.ID.String() + "/attempt-2.png"
	if store.keys[0] != wantKey {
		t.Fatalf("upload key = %q, want %q", store.keys[0], wantKey)
	}
	if edit.OutputRef != "https://images.test/"+wantKey {
		t.Fatalf("output ref = %q", edit.OutputRef)
	}
	if edit.TokensUsed != 321 {
		t.Fatalf("tokens = %d", edit.TokensUsed)
	}
}

func TestEdit_ProviderHostedOutputSkipsUpload(t *testing.T) {
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		return imaging.Result{GeneratedImageRef: "https://provider.test/out.png"}, nil
	}}
	store := &fakeStore{}
	r := newRestorer(svc, store)

	edit, err := r.Edit(context.Background(), testJob(), plan.Plan{
		ModelID: "m", Temperature: 0.5,
		Steps: []plan.Step{{Number: 1, Name: "s", Prompt: "p", Criticality: 3}},
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edit.OutputRef != "https://provider.test/out.png" {
		t.Fatalf("output ref = %q", edit.OutputRef)
	}
	if len(store.keys) != 0 {
		t.Fatalf("unexpected uploads: %v", store.keys)
	}
}

func TestEdit_NoOutputImageFails(t *testing.T) {
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		return imaging.Result{Structured: "done!"}, nil
	}}
	r := newRestorer(svc, &fakeStore{})

	_, err := r.Edit(context.Background(), testJob(), plan.Plan{
		ModelID: "m", Temperature: 0.5,
		Steps: []plan.Step{{Number: 1, Name: "s", Prompt: "p", Criticality: 3}},
	})
	if err == nil || !strings.Contains(err.Error(), "RESTORER_NO_OUTPUT_IMAGE") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate_ParsesReport(t *testing.T) {
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		return imaging.Result{Structured: "```json\n" + `{
			"overall_score": 82,
			"sub_scores": {"preservation": 90, "defect_removal": 80, "naturalness": 78, "enhancement": 75},
			"issues": [{"type": "artificial_appearance", "severity": "minor"}]
		}` + "\n```"}, nil
	}}
	r := newRestorer(svc, &fakeStore{})

	result, err := r.Validate(context.Background(), testJob(), pipeline.EditResult{
		OutputRef: "https://images.test/out.png",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.OverallScore != 82 {
		t.Fatalf("overall = %v", result.OverallScore)
	}
	if result.SubScores.Preservation != 90 {
		t.Fatalf("preservation = %v", result.SubScores.Preservation)
	}
	if len(result.Issues) != 1 || result.Issues[0].Type != "artificial_appearance" {
		t.Fatalf("issues = %+v", result.Issues)
	}
}

func TestValidate_UnparsableReportIsPermanent(t *testing.T) {
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		return imaging.Result{Structured: "the image looks great"}, nil
	}}
	r := newRestorer(svc, &fakeStore{})

	_, err := r.Validate(context.Background(), testJob(), pipeline.EditResult{OutputRef: "ref"})
	if err == nil || !strings.Contains(err.Error(), "RESTORER_VALIDATION_PARSE") {
		t.Fatalf("err = %v", err)
	}
	if ratex.Categorize(err) != ratex.CategoryPermanent {
		t.Fatalf("category = %v, want permanent", ratex.Categorize(err))
	}
}

func TestValidate_ScoreOutOfRangeFails(t *testing.T) {
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		return imaging.Result{Structured: `{"overall_score": 140, "sub_scores": {"preservation": 90, "defect_removal": 80, "naturalness": 78, "enhancement": 75}}`}, nil
	}}
	r := newRestorer(svc, &fakeStore{})

	_, err := r.Validate(context.Background(), testJob(), pipeline.EditResult{OutputRef: "ref"})
	if err == nil || !strings.Contains(err.Error(), "RESTORER_SCORE_OUT_OF_RANGE") {
		t.Fatalf("err = %v", err)
	}
}

func TestStages_ExternalCallsAreAudited(t *testing.T) {
	validation := `{"overall_score": 82, "sub_scores": {"preservation": 90, "defect_removal": 80, "naturalness": 78, "enhancement": 75}}`
	svc := &fakeImaging{fn: func(req imaging.Request) (imaging.Result, error) {
		time.Sleep(time.Millisecond)
		if req.ExpectImage {
			return imaging.Result{GeneratedImage: []byte("png-bytes"), TokensUsed: 100}, nil
		}
		return imaging.Result{Structured: validation}, nil
	}}
	store := &fakeStore{}
	r, audit := newAuditedRestorer(svc, store)

	ctx := context.Background()
	job := testJob()

	analysis, err := r.Analyze(ctx, job)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	p, err := r.BuildPlan(ctx, job, analysis)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	edit, err := r.Edit(ctx, job, p)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if _, err := r.Validate(ctx, job, edit); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	summary, err := audit.FinalizeSession(job.SessionID)
	if err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}
	// 4 imaging calls plus the upload of the generated image.
	if got := summary.EventCounts[auditx.EventExternalCall]; got != 5 {
		t.Fatalf("external_call events = %d, want 5", got)
	}
	if summary.TotalExternalCallTime <= 0 {
		t.Fatalf("total external call time = %v, want > 0", summary.TotalExternalCallTime)
	}
}

package restorer

import (
	"encoding/json"
	"strings"

	"github.com/relightlabs/relight/pkg/pipeline"
	"github.com/relightlabs/relight/pkg/plan"
	"github.com/relightlabs/relight/pkg/qc"
)

// extractJSON pulls the JSON object out of a model response. Models
// frequently wrap JSON in markdown code fences or prepend
// conversational filler, so strip fences first and then cut to the
// outermost brace pair. Returns "" when no object is present.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// parseAnalysis is tolerant: an unparsable analysis still carries
// signal as free text, so fall back to the raw response as summary.
func parseAnalysis(structured string) pipeline.Analysis {
	var a pipeline.Analysis
	raw := extractJSON(structured)
	if raw == "" || json.Unmarshal([]byte(raw), &a) != nil || a.Summary == "" {
		return pipeline.Analysis{Summary: strings.TrimSpace(structured)}
	}
	return a
}

type planResponse struct {
	Temperature float64 `json:"temperature"`
	Steps       []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Prompt      string `json:"prompt"`
		Criticality int    `json:"criticality"`
	} `json:"steps"`
}

// parsePlanSteps extracts the model's proposed steps. ok is false when
// the response yields no usable step, in which case the caller falls
// back to the mode defaults.
func parsePlanSteps(structured string) (planResponse, bool) {
	raw := extractJSON(structured)
	if raw == "" {
		return planResponse{}, false
	}
	var resp planResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return planResponse{}, false
	}

	usable := resp
	usable.Steps = usable.Steps[:0]
	for _, s := range resp.Steps {
		if s.Prompt == "" {
			continue
		}
		if s.Criticality < 1 {
			s.Criticality = 1
		}
		if s.Criticality > 5 {
			s.Criticality = 5
		}
		usable.Steps = append(usable.Steps, s)
	}
	if len(usable.Steps) == 0 {
		return planResponse{}, false
	}
	return usable, true
}

func stepType(s string) plan.StepType {
	switch plan.StepType(s) {
	case plan.StepDefectRemoval, plan.StepColorCorrection,
		plan.StepFaceRestoration, plan.StepEnhancement, plan.StepSharpening:
		return plan.StepType(s)
	default:
		return plan.StepEnhancement
	}
}

// parseValidation is strict: a validation report the engine cannot
// score from is a permanent stage error, not a guess.
func parseValidation(structured string) (qc.ValidationResult, error) {
	raw := extractJSON(structured)
	if raw == "" {
		return qc.ValidationResult{}, restorerErrors.New(ErrValidationParse).
			WithDetail("response", truncate(structured, 200))
	}

	var result qc.ValidationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return qc.ValidationResult{}, restorerErrors.NewWithCause(ErrValidationParse, err)
	}

	for name, score := range map[string]float64{
		"overall_score":  result.OverallScore,
		"preservation":   result.SubScores.Preservation,
		"defect_removal": result.SubScores.DefectRemoval,
		"naturalness":    result.SubScores.Naturalness,
		"enhancement":    result.SubScores.Enhancement,
	} {
		if score < 0 || score > 100 {
			return qc.ValidationResult{}, restorerErrors.New(ErrScoreOutOfRange).
				WithDetail("score", name).
				WithDetail("value", score)
		}
	}

	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

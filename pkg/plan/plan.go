// Package plan holds the restoration plan value type. Plans are value
// objects: every adjustment operates on a deep copy so the parameters
// an attempt actually executed stay reconstructable from the audit
// trail.
package plan

// StepType categorizes a restoration step.
type StepType string

const (
	StepDefectRemoval   StepType = "defect_removal"
	StepColorCorrection StepType = "color_correction"
	StepFaceRestoration StepType = "face_restoration"
	StepEnhancement     StepType = "enhancement"
	StepSharpening      StepType = "sharpening"
)

// Step is a single stage of a restoration plan.
type Step struct {
	Number      int      `json:"number"`
	Name        string   `json:"name"`
	Type        StepType `json:"type"`
	Prompt      string   `json:"prompt"`
	Criticality int      `json:"criticality"` // 1 (cosmetic) .. 5 (essential)
}

// Plan is the full set of parameters one edit attempt executes with.
type Plan struct {
	ModelID      string   `json:"model_id"`
	Temperature  float64  `json:"temperature"`
	Conservative bool     `json:"conservative"`
	Simplified   bool     `json:"simplified"`
	Notes        []string `json:"notes,omitempty"`
	Steps        []Step   `json:"steps"`
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	out := p
	out.Steps = make([]Step, len(p.Steps))
	copy(out.Steps, p.Steps)
	if p.Notes != nil {
		out.Notes = make([]string, len(p.Notes))
		copy(out.Notes, p.Notes)
	}
	return out
}

// LeastCriticalStep returns the index of the step with the lowest
// criticality, or -1 for an empty plan. Ties resolve to the later step.
func (p Plan) LeastCriticalStep() int {
	idx := -1
	lowest := 0
	for i, s := range p.Steps {
		if idx == -1 || s.Criticality <= lowest {
			idx = i
			lowest = s.Criticality
		}
	}
	return idx
}

// CountType returns how many steps of the given type the plan has.
func (p Plan) CountType(t StepType) int {
	n := 0
	for _, s := range p.Steps {
		if s.Type == t {
			n++
		}
	}
	return n
}

package restorer

import (
	"fmt"
	"strings"

	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/plan"
)

func analysisPrompt(mode kernel.Mode) string {
	var goal string
	switch mode {
	case kernel.ModeRemake:
		goal = "a faithful high-resolution remake"
	case kernel.ModeEnhance:
		goal = "enhancement of an already intact photograph"
	default:
		goal = "restoration of a damaged photograph"
	}
	return fmt.Sprintf(`You are assessing an old photograph ahead of %s.
Identify every visible defect (scratches, tears, fading, stains, blur, missing regions)
and note anything that must be preserved exactly (faces, text, period detail).
Respond with JSON: {"summary": string, "detected_defects": [string], "recommended_model": string}.`, goal)
}

func planningPrompt(mode kernel.Mode, summary string, defects []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Build an ordered restoration plan for the photograph described below.
Mode: %s
Assessment: %s
`, mode, summary)
	if len(defects) > 0 {
		fmt.Fprintf(&b, "Defects: %s\n", strings.Join(defects, "; "))
	}
	b.WriteString(`Respond with JSON:
{"temperature": number, "steps": [{"name": string, "type": "defect_removal"|"color_correction"|"face_restoration"|"enhancement"|"sharpening", "prompt": string, "criticality": 1-5}]}.
Order steps so structural repair precedes cosmetic work. Criticality 5 means the result is unusable without the step.`)
	return b.String()
}

func editPrompt(p plan.Plan) string {
	var b strings.Builder
	b.WriteString("Apply the following restoration steps to the image, in order.\n")
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "%d. %s: %s\n", s.Number, s.Name, s.Prompt)
	}
	if p.Conservative {
		b.WriteString("Make only minimal, conservative changes. When in doubt, leave the region untouched.\n")
	}
	if p.Simplified {
		b.WriteString("Favor the essential repairs over cosmetic refinement.\n")
	}
	for _, note := range p.Notes {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}
	b.WriteString("Preserve identity, composition, and period detail exactly.")
	return b.String()
}

func validationPrompt() string {
	return `Score the restored photograph against the original on a 0-100 scale.
Respond with JSON:
{"overall_score": number,
 "sub_scores": {"preservation": number, "defect_removal": number, "naturalness": number, "enhancement": number},
 "issues": [{"type": string, "severity": "minor"|"major"|"critical"|"blocker", "description": string}]}.
Use issue types like identity_distortion, historical_inaccuracy, total_detail_loss,
low_preservation, incomplete_defect_removal, artificial_appearance where they apply.`
}

package insights

import (
	"fmt"
	"strings"

	"github.com/jxmullins/kickoff/internal/prompt"
)

// SystemPrompt frames the insights call.
const SystemPrompt = `You are a senior engagement analyst at Egen, a technology consulting firm. You have more than 15 years of experience reviewing project plans, identifying risks, and giving strategic recommendations for technology engagements.

You are reviewing the complete output of a simulated project kickoff: every deliverable the team of AI agents produced across all phases. Your job is to synthesize it into actionable project intelligence.

You are precise, direct, and pragmatic. You focus on what matters most for project success, call out risks honestly, and give specific, actionable recommendations. You cite specific deliverables and agent outputs when making a point.`

// DeliverableOutput is one finished deliverable fed to the analyst.
type DeliverableOutput struct {
	Title       string
	JobFunction string
	Content     string
}

// Input is everything the insights prompt draws on.
type Input struct {
	SOW               string
	StaffingPlan      string
	AdditionalContext string
	Deliverables      []DeliverableOutput
	Limits            prompt.Limits
}

// BuildUserPrompt renders the insights user prompt.
func BuildUserPrompt(in Input) string {
	maxSOW := in.Limits.MaxSOWChars
	if maxSOW <= 0 {
		maxSOW = prompt.DefaultMaxSOWChars
	}
	maxContext := in.Limits.MaxContextChars
	if maxContext <= 0 {
		maxContext = prompt.DefaultMaxContextChars
	}

	var sb strings.Builder
	sb.WriteString("## Your Task\n")
	sb.WriteString("Review ALL of the following project deliverables produced by the simulation team and provide comprehensive project insights.\n\n")
	fmt.Fprintf(&sb, "## Original Statement of Work\n%s\n\n", prompt.Truncate(in.SOW, maxSOW))

	if in.StaffingPlan != "" {
		fmt.Fprintf(&sb, "## Staffing Plan (Provided Team Roles)\n%s\n\n", in.StaffingPlan)
	}
	if extra := prompt.Truncate(in.AdditionalContext, maxContext); extra != "" {
		fmt.Fprintf(&sb, "## Additional Project Context\n%s\n\n", extra)
	}

	sb.WriteString("## Agent Deliverables (Full Content)\n\n")
	for _, d := range in.Deliverables {
		content := d.Content
		if content == "" {
			content = "No content produced."
		}
		fmt.Fprintf(&sb, "### %s (by %s)\n%s\n\n---\n\n", d.Title, d.JobFunction, content)
	}

	sb.WriteString(`## Analysis Instructions

Based on ALL the deliverables above, provide:

1. **Executive Summary**: Synthesize the overall project plan quality
2. **Project Risks**: Identify risks across all deliverables with severity ratings
3. **Strengths**: What the team did well
4. **Watchpoints**: Things to monitor when the project becomes real
5. **Staffing Gaps**: Compare the provided staffing plan and team roles against the SOW scope. Identify where coverage is thin, skills are missing, or roles are overloaded. Reference specific team roles from the staffing plan.
6. **Scope Assessment**: Is the scope realistic given the timeline and resources? Give a verdict.
7. **Key Recommendations**: Prioritized recommendations for project success
8. **Client Dependencies**: Find assumptions agents made about client-provided resources, decisions, access, or data. Call these out so the real team can prepare.

Be specific. Reference actual deliverable content. Do not be generic.`)

	return sb.String()
}

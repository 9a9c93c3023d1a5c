// Package prompt assembles the user prompt each agent receives.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/jxmullins/kickoff/internal/roster"
	"github.com/jxmullins/kickoff/internal/timeline"
)

// Default truncation limits, in characters.
const (
	DefaultMaxSOWChars        = 50000
	DefaultMaxContextChars    = 10000
	DefaultDeliverablePreview = 1500
)

const (
	defaultCompanyName = "Egen"
	defaultTone        = "Professional and consultative"
)

// Branding shapes tone and framing when templates are enabled.
type Branding struct {
	CompanyName string `yaml:"company_name" json:"companyName,omitempty"`
	ToneOfVoice string `yaml:"tone_of_voice" json:"toneOfVoice,omitempty"`
	HeaderText  string `yaml:"header_text" json:"headerText,omitempty"`
	FooterText  string `yaml:"footer_text" json:"footerText,omitempty"`
}

// DeliverableTemplate pins the section layout of one deliverable.
type DeliverableTemplate struct {
	Sections     []string `yaml:"sections" json:"sections,omitempty"`
	Instructions string   `yaml:"instructions" json:"instructions,omitempty"`
}

// Templates configures branding and per-deliverable structure.
type Templates struct {
	Enabled              bool                           `yaml:"enabled" json:"enabled"`
	Branding             *Branding                      `yaml:"branding,omitempty" json:"branding,omitempty"`
	DeliverableTemplates map[string]DeliverableTemplate `yaml:"deliverable_templates,omitempty" json:"deliverableTemplates,omitempty"`
}

// Limits caps how much of each input reaches the model.
type Limits struct {
	MaxSOWChars        int
	MaxContextChars    int
	DeliverablePreview int
}

func (l Limits) withDefaults() Limits {
	if l.MaxSOWChars <= 0 {
		l.MaxSOWChars = DefaultMaxSOWChars
	}
	if l.MaxContextChars <= 0 {
		l.MaxContextChars = DefaultMaxContextChars
	}
	if l.DeliverablePreview <= 0 {
		l.DeliverablePreview = DefaultDeliverablePreview
	}
	return l
}

// PriorOutput is an earlier agent's result, shown to later agents.
type PriorOutput struct {
	AgentID            string
	ChatMessage        string
	DeliverableContent string
}

// Context is the run state visible to the agent being prompted.
type Context struct {
	SOW               string
	AdditionalContext string
	Timeline          *timeline.Timeline
	SimulatedDate     *time.Time
	// PriorOutputs must be in the order agents first produced output.
	PriorOutputs []PriorOutput
}

// Builder renders prompts against a roster.
type Builder struct {
	roster    *roster.Roster
	templates Templates
	limits    Limits
}

// NewBuilder creates a prompt builder.
func NewBuilder(r *roster.Roster, templates Templates, limits Limits) *Builder {
	return &Builder{
		roster:    r,
		templates: templates,
		limits:    limits.withDefaults(),
	}
}

// Limits returns the effective truncation limits.
func (b *Builder) Limits() Limits {
	return b.limits
}

// Build renders the user prompt for agentID in phaseID. It returns false when
// the agent has no instruction for that phase.
func (b *Builder) Build(agentID string, phaseID int, c Context) (string, bool) {
	in, ok := b.roster.Instruction(phaseID, agentID)
	if !ok {
		return "", false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Task: %s\n\n", in.Task)
	fmt.Fprintf(&sb, "## Instructions\n%s\n\n", in.Instruction)

	sb.WriteString("## Formatting Requirements\n")
	sb.WriteString("Structure your deliverable with clear markdown headings (## for sections, ### for subsections).\n")
	sb.WriteString("Use markdown tables with proper | column | headers | for any tabular data.\n")
	sb.WriteString("Use bullet lists (- item) for enumerated points, not plain text paragraphs.\n")
	sb.WriteString("Separate sections with blank lines for readability.\n\n")

	if b.templates.Enabled {
		b.writeTemplates(&sb, agentID, phaseID)
	}

	if c.Timeline != nil && c.SimulatedDate != nil {
		if w, ok := c.Timeline.Phase(phaseID); ok {
			name := fmt.Sprintf("Phase %d", phaseID)
			if p, ok := b.roster.Phase(phaseID); ok {
				name = p.Name
			}
			sb.WriteString("## Timeline Context\n")
			fmt.Fprintf(&sb, "The current simulated project date is %s. You are in %s (%s - %s).\n\n",
				timeline.FormatDate(*c.SimulatedDate), name,
				timeline.FormatDate(w.StartDate), timeline.FormatDate(w.EndDate))
		}
	}

	fmt.Fprintf(&sb, "## Statement of Work\n%s\n\n", Truncate(c.SOW, b.limits.MaxSOWChars))

	if extra := Truncate(c.AdditionalContext, b.limits.MaxContextChars); extra != "" {
		fmt.Fprintf(&sb, "## Additional Context\n%s\n\n", extra)
	}

	if prior := b.renderPrior(c.PriorOutputs); prior != "" {
		fmt.Fprintf(&sb, "## Team Members' Previous Work\n%s\n\n", prior)
	}

	sb.WriteString("## Response Format\n")
	sb.WriteString("Respond with a JSON object containing:\n")
	sb.WriteString("- \"chatMessage\": A conversational 2-4 sentence message for the team chat, addressing colleagues by their roles. Be natural and collaborative.\n")
	sb.WriteString("- \"deliverableContent\": The full deliverable content in well-formatted markdown. Use ## headings for major sections, ### for subsections, tables with | pipes |, and - bullet lists. Never output plain unstructured text.")

	return sb.String(), true
}

func (b *Builder) writeTemplates(sb *strings.Builder, agentID string, phaseID int) {
	if br := b.templates.Branding; br != nil {
		company := br.CompanyName
		if company == "" {
			company = defaultCompanyName
		}
		tone := br.ToneOfVoice
		if tone == "" {
			tone = defaultTone
		}
		sb.WriteString("## Branding & Tone\n")
		fmt.Fprintf(sb, "Company: %s\n", company)
		fmt.Fprintf(sb, "Tone: %s\n", tone)
		if br.HeaderText != "" {
			fmt.Fprintf(sb, "Header: %s\n", br.HeaderText)
		}
		if br.FooterText != "" {
			fmt.Fprintf(sb, "Footer: %s\n", br.FooterText)
		}
		sb.WriteString("\n")
	}

	d, ok := b.roster.DeliverableFor(agentID, phaseID)
	if !ok {
		return
	}
	dt, ok := b.templates.DeliverableTemplates[d.ID]
	if !ok {
		return
	}
	if len(dt.Sections) > 0 {
		sb.WriteString("## Required Section Structure\n")
		sb.WriteString("Your deliverable MUST follow this exact section order:\n")
		for i, s := range dt.Sections {
			fmt.Fprintf(sb, "%d. %s\n", i+1, s)
		}
		sb.WriteString("\n")
	}
	if dt.Instructions != "" {
		fmt.Fprintf(sb, "## Additional Formatting Instructions\n%s\n\n", dt.Instructions)
	}
}

func (b *Builder) renderPrior(outputs []PriorOutput) string {
	parts := make([]string, 0, len(outputs))
	for _, o := range outputs {
		name := o.AgentID
		if a, ok := b.roster.Agent(o.AgentID); ok && a.JobFunction != "" {
			name = a.JobFunction
		}
		summary := Truncate(o.DeliverableContent, b.limits.DeliverablePreview)
		if summary == "" {
			summary = "N/A"
		}
		parts = append(parts, fmt.Sprintf("### %s's Output\n%s\n\n**Deliverable Summary:**\n%s", name, o.ChatMessage, summary))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Truncate keeps at most n characters of s. n <= 0 disables the limit.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

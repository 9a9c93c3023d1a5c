// Package insights synthesizes a project-level report from every deliverable
// a kickoff produced.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"

	"github.com/jxmullins/kickoff/internal/provider"
)

// ErrUnparseable is returned when the model reply cannot be decoded.
var ErrUnparseable = errors.New("failed to parse insights response as JSON")

// Insights is the synthesized project report.
type Insights struct {
	ExecutiveSummary   string           `json:"executiveSummary" jsonschema_description:"A 3-5 paragraph executive summary of the overall project plan quality, key strengths, and areas of concern"`
	ProjectRisks       []Risk           `json:"projectRisks" jsonschema_description:"Identified project risks with severity and mitigation strategies"`
	Strengths          []string         `json:"strengths" jsonschema_description:"What went well in the project planning: strong areas of the deliverables"`
	Watchpoints        []Watchpoint     `json:"watchpoints" jsonschema_description:"Things to monitor when the project becomes real"`
	StaffingGaps       []StaffingGap    `json:"staffingGaps" jsonschema_description:"Gaps in staffing based on the provided team roles vs the SOW scope"`
	ScopeAssessment    ScopeAssessment  `json:"scopeAssessment" jsonschema_description:"Assessment of whether the scope is achievable given timeline and resources"`
	KeyRecommendations []Recommendation `json:"keyRecommendations" jsonschema_description:"Key recommendations prioritized by timeframe"`
	ClientDependencies []Dependency     `json:"clientDependencies" jsonschema_description:"Client dependencies and assumptions that need validation"`
}

type Risk struct {
	Risk       string `json:"risk" jsonschema_description:"Description of the risk"`
	Severity   string `json:"severity" jsonschema:"enum=high,enum=medium,enum=low" jsonschema_description:"Risk severity level"`
	Source     string `json:"source" jsonschema_description:"Which deliverable or agent output surfaced this risk"`
	Mitigation string `json:"mitigation" jsonschema_description:"Recommended mitigation strategy"`
}

type Watchpoint struct {
	Item   string `json:"item" jsonschema_description:"The watchpoint item"`
	Reason string `json:"reason" jsonschema_description:"Why this needs monitoring"`
}

type StaffingGap struct {
	Gap             string `json:"gap" jsonschema_description:"The staffing gap identified"`
	CurrentCoverage string `json:"currentCoverage" jsonschema_description:"What role or person currently covers this, if any"`
	Impact          string `json:"impact" jsonschema_description:"Impact if this gap is not addressed"`
	Recommendation  string `json:"recommendation" jsonschema_description:"How to address the gap"`
}

type ScopeAssessment struct {
	Verdict         string `json:"verdict" jsonschema:"enum=realistic,enum=tight,enum=aggressive,enum=unrealistic" jsonschema_description:"Overall scope feasibility verdict"`
	Analysis        string `json:"analysis" jsonschema_description:"Detailed analysis of scope vs timeline vs resources"`
	Recommendations string `json:"recommendations" jsonschema_description:"Recommendations for scope adjustments"`
}

type Recommendation struct {
	Recommendation string `json:"recommendation" jsonschema_description:"The recommendation"`
	Priority       string `json:"priority" jsonschema:"enum=immediate,enum=short-term,enum=long-term" jsonschema_description:"Priority timeframe"`
	Rationale      string `json:"rationale" jsonschema_description:"Why this recommendation matters"`
}

type Dependency struct {
	Dependency     string `json:"dependency" jsonschema_description:"What the client must provide, decide, or unblock"`
	Assumption     string `json:"assumption" jsonschema_description:"What was assumed by the agents about this dependency"`
	Impact         string `json:"impact" jsonschema_description:"Impact if this dependency is not met"`
	Recommendation string `json:"recommendation" jsonschema_description:"How the real team should prepare for this"`
}

// Clone returns a copy that shares no slices with in.
func (in *Insights) Clone() *Insights {
	if in == nil {
		return nil
	}
	out := *in
	out.ProjectRisks = slices.Clone(in.ProjectRisks)
	out.Strengths = slices.Clone(in.Strengths)
	out.Watchpoints = slices.Clone(in.Watchpoints)
	out.StaffingGaps = slices.Clone(in.StaffingGaps)
	out.KeyRecommendations = slices.Clone(in.KeyRecommendations)
	out.ClientDependencies = slices.Clone(in.ClientDependencies)
	return &out
}

var (
	severities = []string{"high", "medium", "low"}
	verdicts   = []string{"realistic", "tight", "aggressive", "unrealistic"}
	priorities = []string{"immediate", "short-term", "long-term"}
)

// Validate rejects enum values outside the schema.
func (in *Insights) Validate() error {
	for i, r := range in.ProjectRisks {
		if !slices.Contains(severities, r.Severity) {
			return fmt.Errorf("projectRisks[%d]: invalid severity %q", i, r.Severity)
		}
	}
	if v := in.ScopeAssessment.Verdict; v != "" && !slices.Contains(verdicts, v) {
		return fmt.Errorf("scopeAssessment: invalid verdict %q", v)
	}
	for i, r := range in.KeyRecommendations {
		if !slices.Contains(priorities, r.Priority) {
			return fmt.Errorf("keyRecommendations[%d]: invalid priority %q", i, r.Priority)
		}
	}
	return nil
}

// unsupportedKeys are JSON Schema keywords model APIs reject in a response schema.
var unsupportedKeys = []string{"$schema", "$id", "$ref", "$defs", "additionalProperties"}

// Schema returns the response schema derived from Insights, inlined and
// stripped to the subset model APIs accept.
func Schema() (map[string]any, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	s := r.Reflect(&Insights{})

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling insights schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding insights schema: %w", err)
	}
	strip(out)
	return out, nil
}

func strip(v any) {
	switch node := v.(type) {
	case map[string]any:
		for _, k := range unsupportedKeys {
			delete(node, k)
		}
		for _, child := range node {
			strip(child)
		}
	case []any:
		for _, child := range node {
			strip(child)
		}
	}
}

// JSONGenerator is the model call the generator needs.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, req provider.SchemaRequest) (json.RawMessage, error)
}

// Generator produces insights with a schema-constrained model call.
type Generator struct {
	client    JSONGenerator
	maxTokens int
}

// NewGenerator creates a generator. maxTokens <= 0 uses the schema default.
func NewGenerator(client JSONGenerator, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = provider.DefaultSchemaMaxTokens
	}
	return &Generator{client: client, maxTokens: maxTokens}
}

// Generate runs the insights call and decodes its result.
func (g *Generator) Generate(ctx context.Context, in Input) (*Insights, error) {
	schema, err := Schema()
	if err != nil {
		return nil, err
	}

	raw, err := g.client.GenerateJSON(ctx, provider.SchemaRequest{
		SystemPrompt: SystemPrompt,
		UserPrompt:   BuildUserPrompt(in),
		Schema:       schema,
		MaxTokens:    g.maxTokens,
		Temperature:  provider.DefaultSchemaTemperature,
	})
	if err != nil {
		return nil, err
	}

	var out Insights
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, ErrUnparseable
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid insights: %w", err)
	}
	return &out, nil
}

// Package staffing extracts project role titles from a free-text staffing plan.
package staffing

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jxmullins/kickoff/internal/roster"
)

// linePattern splits a line on its first run of separators: em dash, en dash,
// hyphen, pipe or colon.
var linePattern = regexp.MustCompile(`^(.+?)[\x{2014}\x{2013}\-|:]+(.+)$`)

type rolePattern struct {
	re      *regexp.Regexp
	agentID string
}

// Order matters: a line is claimed by the first pattern its left side matches.
var rolePatterns = []rolePattern{
	{regexp.MustCompile(`(?i)data\s*engineer`), "data-engineer"},
	{regexp.MustCompile(`(?i)ai|ml|machine\s*learning`), "ai-ml-engineer"},
	{regexp.MustCompile(`(?i)cloud|infra|devops|sre`), "cloud-engineer"},
	{regexp.MustCompile(`(?i)full.?stack|front.?end|back.?end|developer|software\s*eng`), "fullstack-developer"},
	{regexp.MustCompile(`(?i)qa|quality|test`), "qa-engineer"},
	{regexp.MustCompile(`(?i)architect|solution`), "solutions-architect"},
	{regexp.MustCompile(`(?i)project\s*manag|scrum|delivery`), "project-manager"},
	{regexp.MustCompile(`(?i)client|account|partner|engagement`), "client-partner"},
}

const (
	minRoleLen = 3
	maxRoleLen = 49
)

// Parse maps agent IDs to the project role named for them in the plan.
// Lines look like "Sr. Data Engineer - Pipeline Architect". The first line
// that claims an agent wins; later lines for the same agent are ignored.
func Parse(text string) map[string]string {
	roles := make(map[string]string)
	if strings.TrimSpace(text) == "" {
		return roles
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		left := strings.TrimSpace(m[1])
		right := strings.TrimSpace(m[2])
		n := utf8.RuneCountInString(right)
		if n < minRoleLen || n > maxRoleLen {
			continue
		}
		agentID := match(left)
		if agentID == "" {
			continue
		}
		if _, taken := roles[agentID]; taken {
			continue
		}
		roles[agentID] = right
	}

	return roles
}

// Match reports which agent a job title belongs to, or "" if none.
func Match(title string) string {
	return match(strings.TrimSpace(title))
}

func match(left string) string {
	for _, p := range rolePatterns {
		if p.re.MatchString(left) {
			return p.agentID
		}
	}
	return ""
}

// RoleFor returns the parsed role for an agent, or its default project role.
func RoleFor(roles map[string]string, agent roster.Agent) string {
	if r, ok := roles[agent.ID]; ok && r != "" {
		return r
	}
	return agent.DefaultProjectRole
}

package orchestrator

import (
	"slices"
	"strings"

	"github.com/snow-ghost/assistant/core"
)

// Skip rule names, used as termination reasons and metric labels.
const (
	RuleText2SQLSuccess    = "text2sql_success"
	RuleSearchPaperSuccess = "search_paper_success"
	RuleWebSearchSuccess   = "web_search_success"
	RuleAlreadyAnswered    = "already_answered"
)

// SkipRules holds the thresholds of the pipeline short-circuits
type SkipRules struct {
	// MinSQLChars is the length a text2sql result must exceed to end the run.
	MinSQLChars int
	// SQLErrorMarkers disqualify a text2sql result, matched case-insensitively.
	SQLErrorMarkers []string
	// NotFoundMarker disqualifies a search_paper result.
	NotFoundMarker string
	// MinWebChars is the length a web_search result must exceed to skip general steps.
	MinWebChars int
}

// DefaultSkipRules returns the standard thresholds
func DefaultSkipRules() SkipRules {
	return SkipRules{
		MinSQLChars:     50,
		SQLErrorMarkers: []string{"error", "exception", "failed"},
		NotFoundMarker:  "not found",
		MinWebChars:     50,
	}
}

// skipOutcome says where the run continues after a successful tool
type skipOutcome struct {
	rule      string
	terminate bool
	next      int
	skipped   []core.Tool
}

// apply evaluates the rules for a successful run of tool at index of
// pipeline. Without a rule, next is simply index+1.
func (r SkipRules) apply(tool core.Tool, output string, pipeline []core.Tool, index int) skipOutcome {
	out := skipOutcome{next: index + 1}
	lower := strings.ToLower(output)

	switch tool {
	case core.ToolText2SQL:
		if len(output) > r.MinSQLChars && !containsAny(lower, r.SQLErrorMarkers) {
			out.rule = RuleText2SQLSuccess
			out.terminate = true
			if out.next < len(pipeline) {
				out.skipped = slices.Clone(pipeline[out.next:])
			}
		}
	case core.ToolSearchPaper:
		if r.NotFoundMarker == "" || !strings.Contains(lower, strings.ToLower(r.NotFoundMarker)) {
			out.skipForward(RuleSearchPaperSuccess, pipeline, core.ToolWebSearch, core.ToolGeneral)
		}
	case core.ToolWebSearch:
		if len(output) > r.MinWebChars {
			out.skipForward(RuleWebSearchSuccess, pipeline, core.ToolGeneral)
		}
	}

	return out
}

// skipForward moves the cursor past consecutive steps using one of tools.
// The rule is recorded only when something was skipped.
func (o *skipOutcome) skipForward(rule string, pipeline []core.Tool, tools ...core.Tool) {
	for o.next < len(pipeline) && slices.Contains(tools, pipeline[o.next]) {
		o.skipped = append(o.skipped, pipeline[o.next])
		o.next++
	}
	if len(o.skipped) > 0 {
		o.rule = rule
	}
}

// skipAnswered moves next past steps whose tool already succeeded earlier in
// the run, e.g. a fallback substitute that is also the following step.
func skipAnswered(pipeline []core.Tool, next int, answered []core.Tool) (int, []core.Tool) {
	var skipped []core.Tool
	for next < len(pipeline) && slices.Contains(answered, pipeline[next]) {
		skipped = append(skipped, pipeline[next])
		next++
	}
	return next, skipped
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

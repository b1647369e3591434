package collab

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeObject extracts the outermost JSON object from a model response
// and decodes it strictly into out. Surrounding prose is tolerated;
// anything that fails to decode against the schema is an error, never a
// best-effort guess. Adapters wrap the error with Unavailable.
func DecodeObject(response string, out any) error {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		preview := response
		if len(preview) > 300 {
			preview = preview[:300] + "... (truncated)"
		}
		return fmt.Errorf("no JSON object in response (%d chars): %q", len(response), preview)
	}

	dec := json.NewDecoder(strings.NewReader(response[start : end+1]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ValidatePlan checks a decoded plan's structural requirements: unique
// non-empty IDs, known complexity values, and dependency references
// resolving inside the plan. (Acyclicity is the graph's job; this is
// the response-schema gate.)
func ValidatePlan(plan *Plan) error {
	if len(plan.Tasks) == 0 {
		return fmt.Errorf("plan contains no tasks")
	}

	seen := make(map[string]bool, len(plan.Tasks))
	for _, task := range plan.Tasks {
		if task.ID == "" {
			return fmt.Errorf("task %q has no id", task.Title)
		}
		if seen[task.ID] {
			return fmt.Errorf("duplicate task id %q", task.ID)
		}
		seen[task.ID] = true
		if task.Complexity != "" && !task.Complexity.Valid() {
			return fmt.Errorf("task %q has unknown complexity %q", task.ID, task.Complexity)
		}
	}
	for _, task := range plan.Tasks {
		for _, dep := range task.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("task %q depends on unknown task %q", task.ID, dep)
			}
		}
	}
	return nil
}

// ValidateTaskResponse checks an executor response's structural
// requirements: a known outcome, and a well-formed typed request when
// the outcome asks for information.
func ValidateTaskResponse(resp *TaskResponse) error {
	if !resp.Outcome.Valid() {
		return fmt.Errorf("unknown outcome %q", resp.Outcome)
	}
	if resp.Outcome == OutcomeNeedsInfo {
		if resp.Info == nil {
			return fmt.Errorf("needs_info outcome without info_request")
		}
		if !resp.Info.Type.Valid() {
			return fmt.Errorf("unknown info request type %q", resp.Info.Type)
		}
		if resp.Info.Query == "" {
			return fmt.Errorf("info request has empty query")
		}
	}
	return nil
}

// ValidateReview checks a reviewer response: a structured verdict and a
// score inside the 0-10 range.
func ValidateReview(resp *ReviewResponse) error {
	if !resp.Verdict.Valid() {
		return fmt.Errorf("unknown verdict %q", resp.Verdict)
	}
	if resp.Score < 0 || resp.Score > 10 {
		return fmt.Errorf("score %v outside 0-10", resp.Score)
	}
	return nil
}

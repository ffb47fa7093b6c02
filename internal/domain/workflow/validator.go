package workflow

import (
	"encoding/json"
	"fmt"
)

// ValidationResult reports the structural validity of a definition graph.
// Errors carries every violated rule, never just the first.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors"`
}

// ValidationError is one violated validation rule.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	StepID  string `json:"step_id,omitempty"`
}

// HasError reports whether the result contains an error with the given code.
func (r ValidationResult) HasError(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// ValidateDefinitionJSON parses raw definition JSON and validates it.
// A parse failure is reported as a single invalid_json error.
func ValidateDefinitionJSON(raw []byte) ValidationResult {
	var graph map[string]any
	if err := json.Unmarshal(raw, &graph); err != nil {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Code: "invalid_json", Message: "definition must be a JSON object"},
			},
		}
	}
	return ValidateDefinition(graph)
}

// ValidateDefinition checks the structural integrity of a definition graph.
// Rules are evaluated independently and all failures are collected.
func ValidateDefinition(graph map[string]any) ValidationResult {
	var errs []ValidationError

	errs = validateStartStep(graph, errs)
	errs = validateEndSteps(graph, errs)
	errs = validateApprovalSteps(graph, errs)
	errs = validateStepIDsUnique(graph, errs)
	errs = validateTransitionRefs(graph, errs)
	errs = validateNoOrphans(graph, errs)
	errs = validateNoCycles(graph, errs)
	errs = validateApprovalTransitions(graph, errs)
	errs = validateFormFields(graph, errs)

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Exactly one start step.
func validateStartStep(graph map[string]any, errs []ValidationError) []ValidationError {
	count := 0
	for _, step := range graphSteps(graph) {
		if stepType(step) == "start" {
			count++
		}
	}
	switch {
	case count == 0:
		errs = append(errs, ValidationError{
			Code:    "missing_start_step",
			Message: "a start step is required",
		})
	case count > 1:
		errs = append(errs, ValidationError{
			Code:    "multiple_start_steps",
			Message: "only one start step is allowed",
		})
	}
	return errs
}

// At least one end step.
func validateEndSteps(graph map[string]any, errs []ValidationError) []ValidationError {
	for _, step := range graphSteps(graph) {
		if stepType(step) == "end" {
			return errs
		}
	}
	return append(errs, ValidationError{
		Code:    "missing_end_step",
		Message: "an end step is required",
	})
}

// At least one approval step.
func validateApprovalSteps(graph map[string]any, errs []ValidationError) []ValidationError {
	for _, step := range graphSteps(graph) {
		if stepType(step) == "approval" {
			return errs
		}
	}
	return append(errs, ValidationError{
		Code:    "missing_approval_step",
		Message: "an approval step is required",
	})
}

// No duplicate step ids.
func validateStepIDsUnique(graph map[string]any, errs []ValidationError) []ValidationError {
	seen := make(map[string]bool)
	for _, step := range graphSteps(graph) {
		id := stepID(step)
		if id == "" {
			continue
		}
		if seen[id] {
			errs = append(errs, ValidationError{
				Code:    "duplicate_step_id",
				Message: fmt.Sprintf("step id %q is duplicated", id),
				StepID:  id,
			})
		}
		seen[id] = true
	}
	return errs
}

// Every transition's from/to must reference an existing step.
func validateTransitionRefs(graph map[string]any, errs []ValidationError) []ValidationError {
	stepIDs := make(map[string]bool)
	for _, step := range graphSteps(graph) {
		stepIDs[stepID(step)] = true
	}
	for _, tr := range graphTransitions(graph) {
		for _, key := range []string{"from", "to"} {
			ref := stringField(tr, key)
			if ref != "" && !stepIDs[ref] {
				errs = append(errs, ValidationError{
					Code:    "invalid_transition_ref",
					Message: fmt.Sprintf("transition references unknown step %q", ref),
					StepID:  ref,
				})
			}
		}
	}
	return errs
}

// Every non-start step must appear in at least one transition.
func validateNoOrphans(graph map[string]any, errs []ValidationError) []ValidationError {
	connected := make(map[string]bool)
	for _, tr := range graphTransitions(graph) {
		connected[stringField(tr, "from")] = true
		connected[stringField(tr, "to")] = true
	}
	for _, step := range graphSteps(graph) {
		id := stepID(step)
		if id == "" || stepType(step) == "start" {
			continue
		}
		if !connected[id] {
			errs = append(errs, ValidationError{
				Code:    "orphaned_step",
				Message: fmt.Sprintf("step %q is not connected to any transition", id),
				StepID:  id,
			})
		}
	}
	return errs
}

// dfs colors for cycle detection.
const (
	colorWhite = iota
	colorGray
	colorBlack
)

// No cycles: 3-color depth-first search over the transition graph.
// A back-edge into a gray node is a cycle.
func validateNoCycles(graph map[string]any, errs []ValidationError) []ValidationError {
	adjacency := make(map[string][]string)
	var order []string
	for _, step := range graphSteps(graph) {
		if id := stepID(step); id != "" {
			if _, ok := adjacency[id]; !ok {
				adjacency[id] = nil
				order = append(order, id)
			}
		}
	}
	for _, tr := range graphTransitions(graph) {
		from, to := stringField(tr, "from"), stringField(tr, "to")
		if from != "" && to != "" {
			adjacency[from] = append(adjacency[from], to)
		}
	}

	colors := make(map[string]int, len(adjacency))
	var hasCycle bool
	var dfs func(node string)
	dfs = func(node string) {
		if hasCycle {
			return
		}
		colors[node] = colorGray
		for _, next := range adjacency[node] {
			switch colors[next] {
			case colorGray:
				hasCycle = true
				return
			case colorWhite:
				dfs(next)
			}
		}
		colors[node] = colorBlack
	}
	for _, node := range order {
		if colors[node] == colorWhite {
			dfs(node)
		}
	}

	if hasCycle {
		errs = append(errs, ValidationError{
			Code:    "cycle_detected",
			Message: "the workflow graph contains a cycle",
		})
	}
	return errs
}

// Every approval step needs both an approve and a reject outgoing transition.
func validateApprovalTransitions(graph map[string]any, errs []ValidationError) []ValidationError {
	transitions := graphTransitions(graph)
	for _, step := range graphSteps(graph) {
		if stepType(step) != "approval" {
			continue
		}
		id := stepID(step)
		if id == "" {
			continue
		}
		triggers := make(map[string]bool)
		for _, tr := range transitions {
			if stringField(tr, "from") == id {
				triggers[stringField(tr, "trigger")] = true
			}
		}
		if !triggers["approve"] || !triggers["reject"] {
			errs = append(errs, ValidationError{
				Code:    "missing_approval_transition",
				Message: fmt.Sprintf("approval step %q needs both approve and reject transitions", id),
				StepID:  id,
			})
		}
	}
	return errs
}

var validFormFieldTypes = map[string]bool{
	"text":     true,
	"textarea": true,
	"number":   true,
	"select":   true,
	"date":     true,
}

// Form schema is optional; when present every field needs a unique id, a
// label, and a known type. Select fields must declare options.
func validateFormFields(graph map[string]any, errs []ValidationError) []ValidationError {
	form, ok := graph["form"].(map[string]any)
	if !ok {
		return errs
	}
	fields := objectArray(form, "fields")
	seen := make(map[string]bool)

	for _, field := range fields {
		id, hasID := field["id"].(string)
		if !hasID || id == "" {
			errs = append(errs, ValidationError{
				Code:    "invalid_form_field",
				Message: "form field is missing an id",
			})
			continue
		}
		if seen[id] {
			errs = append(errs, ValidationError{
				Code:    "invalid_form_field",
				Message: fmt.Sprintf("form field id %q is duplicated", id),
			})
		}
		seen[id] = true

		fieldType, hasType := field["type"].(string)
		switch {
		case !hasType:
			errs = append(errs, ValidationError{
				Code:    "invalid_form_field",
				Message: fmt.Sprintf("form field %q is missing a type", id),
			})
		case !validFormFieldTypes[fieldType]:
			errs = append(errs, ValidationError{
				Code:    "invalid_form_field",
				Message: fmt.Sprintf("form field %q has invalid type %q", id, fieldType),
			})
		}

		if label, ok := field["label"].(string); !ok || label == "" {
			errs = append(errs, ValidationError{
				Code:    "invalid_form_field",
				Message: fmt.Sprintf("form field %q is missing a label", id),
			})
		}

		if fieldType == "select" {
			options, _ := field["options"].([]any)
			if len(options) == 0 {
				errs = append(errs, ValidationError{
					Code:    "invalid_form_field",
					Message: fmt.Sprintf("select field %q must declare options", id),
				})
			}
		}
	}
	return errs
}

package workflow

import "time"

// DefinitionStatus is the lifecycle status of a workflow definition.
type DefinitionStatus string

const (
	DefinitionStatusDraft     DefinitionStatus = "draft"
	DefinitionStatusPublished DefinitionStatus = "published"
	DefinitionStatusArchived  DefinitionStatus = "archived"
)

// Definition is a reusable workflow definition: a graph of start/approval/end
// steps with approve/reject transitions, plus an optional form schema.
// Consumed read-only by the approval engine; only published definitions may
// be instantiated.
type Definition struct {
	ID        string
	TenantID  string
	Name      string
	Status    DefinitionStatus
	Version   int
	Graph     map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPublished reports whether the definition may be instantiated.
func (d *Definition) IsPublished() bool {
	return d.Status == DefinitionStatusPublished
}

// ApprovalStepDef is one approval step extracted from a definition graph,
// in declared order. Derived, never persisted.
type ApprovalStepDef struct {
	ID   string
	Name string
}

// ExtractApprovalSteps returns the definition's approval-type steps in
// declared order. The list drives step creation on submit and resubmit:
// callers must supply exactly one approver per entry, in the same order.
func ExtractApprovalSteps(graph map[string]any) []ApprovalStepDef {
	var result []ApprovalStepDef
	for _, step := range graphSteps(graph) {
		if stepType(step) != "approval" {
			continue
		}
		name, _ := step["name"].(string)
		result = append(result, ApprovalStepDef{ID: stepID(step), Name: name})
	}
	return result
}

// graphSteps returns the steps array of a definition graph, or nil.
func graphSteps(graph map[string]any) []map[string]any {
	return objectArray(graph, "steps")
}

// graphTransitions returns the transitions array of a definition graph, or nil.
func graphTransitions(graph map[string]any) []map[string]any {
	return objectArray(graph, "transitions")
}

func objectArray(graph map[string]any, key string) []map[string]any {
	raw, ok := graph[key].([]any)
	if !ok {
		return nil
	}
	items := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if obj, ok := v.(map[string]any); ok {
			items = append(items, obj)
		}
	}
	return items
}

func stepID(step map[string]any) string {
	id, _ := step["id"].(string)
	return id
}

func stepType(step map[string]any) string {
	t, _ := step["type"].(string)
	return t
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// PlanItemStatus is the closed status set for a single plan item.
type PlanItemStatus string

const (
	PlanPending    PlanItemStatus = "pending"
	PlanInProgress PlanItemStatus = "in_progress"
	PlanDone       PlanItemStatus = "done"
)

// PlanItem is one entry in a todo_write/todo_read plan.
type PlanItem struct {
	ID     int            `json:"id"`
	Text   string         `json:"text"`
	Status PlanItemStatus `json:"status"`
}

// PlanPayload is the full plan for one plan_id.
type PlanPayload struct {
	PlanID string     `json:"plan_id"`
	Items  []PlanItem `json:"items"`
}

// planStore is an in-memory, mutex-guarded registry of plans keyed by
// plan_id, shared by TodoWriteTool and TodoReadTool.
type planStore struct {
	mu    sync.Mutex
	plans map[string]*PlanPayload
}

func newPlanStore() *planStore {
	return &planStore{plans: make(map[string]*PlanPayload)}
}

func (s *planStore) get(id string) (*PlanPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	return p, ok
}

func (s *planStore) put(id string, p *PlanPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[id] = p
}

const defaultPlanID = "default"

func resolvePlanID(args api.Args) string {
	if id := GetStringArg(args, "plan_id", ""); id != "" {
		return id
	}
	return defaultPlanID
}

// TodoReadTool reads the current plan. Part of the todo_bypass set.
type TodoReadTool struct {
	BaseTool
	store *planStore
}

// NewTodoReadTool returns a todo_read tool backed by store, or a fresh
// store if nil.
func NewTodoReadTool(store ...*planStore) *TodoReadTool {
	s := sharedPlanStore(store)
	return &TodoReadTool{
		BaseTool: NewBaseTool(
			"todo_read",
			"Read the current task plan/todo list.",
			[]ParameterDef{
				{Name: "plan_id", Type: "string", Description: "Optional explicit plan id (default: the shared plan \"default\")", Required: false},
			},
		),
		store: s,
	}
}

func (t *TodoReadTool) Execute(_ context.Context, args api.Args) (api.ToolExecutionResult, error) {
	planID := resolvePlanID(args)
	plan, ok := t.store.get(planID)
	if !ok {
		plan = &PlanPayload{PlanID: planID, Items: []PlanItem{}}
	}
	content, _ := json.MarshalIndent(plan, "", "  ")
	return api.ToolExecutionResult{Name: t.Name(), Status: api.ExecSuccess, Type: api.ResultJSON, Result: string(content)}, nil
}

// TodoWriteTool creates or updates the plan. Part of the todo_bypass set,
// so it never requires approval.
type TodoWriteTool struct {
	BaseTool
	store *planStore
}

// NewTodoWriteTool returns a todo_write tool backed by store, or a fresh
// store if nil. Pass the same store instance to NewTodoReadTool so reads
// see writes.
func NewTodoWriteTool(store ...*planStore) *TodoWriteTool {
	s := sharedPlanStore(store)
	return &TodoWriteTool{
		BaseTool: NewBaseTool(
			"todo_write",
			"Create or update the task plan/todo list. mode is set, append, or patch.",
			[]ParameterDef{
				{Name: "plan_id", Type: "string", Description: "Optional explicit plan id (default: the shared plan \"default\")", Required: false},
				{Name: "mode", Type: "string", Description: "set | append | patch (default: set)", Required: false},
				{Name: "items", Type: "array", Description: "Items for set/append mode: [{id, text, status}]", Required: false},
				{Name: "patches", Type: "array", Description: "Patches for patch mode: [{id, text, status, delete}]", Required: false},
			},
		),
		store: s,
	}
}

func sharedPlanStore(stores []*planStore) *planStore {
	if len(stores) > 0 && stores[0] != nil {
		return stores[0]
	}
	return newPlanStore()
}

func parsePlanItems(raw any) []PlanItem {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []PlanItem
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pi := PlanItem{Status: PlanPending}
		if id, ok := m["id"].(float64); ok {
			pi.ID = int(id)
		}
		if text, ok := m["text"].(string); ok {
			pi.Text = text
		}
		if status, ok := m["status"].(string); ok {
			pi.Status = PlanItemStatus(status)
		}
		out = append(out, pi)
	}
	return out
}

func (t *TodoWriteTool) Execute(_ context.Context, args api.Args) (api.ToolExecutionResult, error) {
	planID := resolvePlanID(args)
	mode := GetStringArg(args, "mode", "set")
	newItems := parsePlanItems(args["items"])

	var plan *PlanPayload
	switch mode {
	case "set":
		plan = &PlanPayload{PlanID: planID, Items: newItems}

	case "append":
		existing, ok := t.store.get(planID)
		if !ok {
			existing = &PlanPayload{PlanID: planID}
		}
		maxID := 0
		for _, item := range existing.Items {
			if item.ID > maxID {
				maxID = item.ID
			}
		}
		for i := range newItems {
			if newItems[i].ID == 0 {
				maxID++
				newItems[i].ID = maxID
			}
		}
		existing.Items = append(existing.Items, newItems...)
		plan = existing

	case "patch":
		existing, ok := t.store.get(planID)
		if !ok {
			return failuref(t.Name(), api.ReasonNotFound, "no plan %q to patch", planID), nil
		}
		if patches, ok := args["patches"].([]any); ok {
			for _, p := range patches {
				patchMap, ok := p.(map[string]any)
				if !ok {
					continue
				}
				id, ok := patchMap["id"].(float64)
				if !ok || int(id) == 0 {
					continue
				}
				for i := range existing.Items {
					if existing.Items[i].ID != int(id) {
						continue
					}
					if text, ok := patchMap["text"].(string); ok {
						existing.Items[i].Text = text
					}
					if status, ok := patchMap["status"].(string); ok {
						existing.Items[i].Status = PlanItemStatus(status)
					}
					if del, ok := patchMap["delete"].(bool); ok && del {
						existing.Items = append(existing.Items[:i], existing.Items[i+1:]...)
					}
					break
				}
			}
		}
		plan = existing

	default:
		return failuref(t.Name(), api.ReasonInvalidInput, "invalid mode: %s", mode), nil
	}

	seen := make(map[int]bool, len(plan.Items))
	for _, item := range plan.Items {
		if seen[item.ID] {
			return failuref(t.Name(), api.ReasonInvalidInput, "duplicate item id: %d", item.ID), nil
		}
		seen[item.ID] = true
	}

	t.store.put(planID, plan)

	content, _ := json.MarshalIndent(plan, "", "  ")
	return api.ToolExecutionResult{Name: t.Name(), Status: api.ExecSuccess, Type: api.ResultJSON, Result: string(content)}, nil
}

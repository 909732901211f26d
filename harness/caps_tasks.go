package harness

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JamesMcMurran/ralph-ollama/tasklist"
)

// RegisterTaskCapabilities registers the task-list bookkeeping operations:
// story lookup, completion-status updates, and append-only progress logging.
func RegisterTaskCapabilities(reg *Registry, store *tasklist.Store) error {
	capabilities := []CapabilityDescriptor{
		{
			Name:        "get_next_story",
			Description: "Get the next story from the task list that is not yet passing",
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				story, ok, err := store.NextStory()
				if err != nil {
					return nil, err
				}
				if !ok {
					return "All stories are passing", nil
				}
				data, err := json.MarshalIndent(story, "", "  ")
				if err != nil {
					return nil, err
				}
				return string(data), nil
			},
		},
		{
			Name:        "update_prd",
			Description: "Update a story's completion status in the task list",
			Parameters: []Parameter{
				{Name: "story_id", Type: "string", Description: "The story ID to update", Required: true},
				{Name: "passes", Type: "boolean", Description: "Whether the story now passes (default true)"},
			},
			SuccessMarkers: []string{"marked passing"},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				id := stringArg(args, "story_id", "")
				passes := true
				if v, ok := args["passes"].(bool); ok {
					passes = v
				}
				if err := store.SetPassing(id, passes); err != nil {
					return nil, err
				}
				if passes {
					return fmt.Sprintf("Story %s marked passing", id), nil
				}
				return fmt.Sprintf("Story %s marked not passing", id), nil
			},
		},
		{
			Name:        "append_progress",
			Description: "Append an entry to the progress log",
			Parameters: []Parameter{
				{Name: "entry", Type: "string", Description: "The progress note to record", Required: true},
			},
			Execute: func(ctx context.Context, args map[string]any) (any, error) {
				if err := store.AppendProgress(stringArg(args, "entry", "")); err != nil {
					return nil, err
				}
				return "Progress logged", nil
			},
		},
	}

	for _, c := range capabilities {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/fyrsmithlabs/rewind/internal/snapshot"
)

// checkpointView is the JSON shape of a checkpoint in list output.
type checkpointView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Files       int       `json:"files"`
}

func checkpointViews(checkpoints []*snapshot.Checkpoint) []checkpointView {
	views := make([]checkpointView, 0, len(checkpoints))
	for _, cp := range checkpoints {
		views = append(views, checkpointView{
			ID:          cp.ID,
			Name:        cp.Name,
			Description: cp.Description,
			CreatedAt:   cp.CreatedAt,
			Files:       cp.Len(),
		})
	}
	return views
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

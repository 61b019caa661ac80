package engine

import (
	"time"

	"github.com/openmined/deltasync/internal/delta"
)

// Plan is the outcome of one detection pass: both change lists and the merged
// decision per path. Cursor is the remote cursor to save once the plan has
// been carried out.
type Plan struct {
	ID        string              `json:"id" yaml:"id"`
	Root      string              `json:"root" yaml:"root"`
	Provider  string              `json:"provider" yaml:"provider"`
	Direction Direction           `json:"direction" yaml:"direction"`
	Local     []delta.DeltaEntry  `json:"local" yaml:"local"`
	Remote    []delta.DeltaEntry  `json:"remote" yaml:"remote"`
	Merged    []delta.MergedDelta `json:"merged" yaml:"merged"`
	Cursor    string              `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	CreatedAt time.Time           `json:"created_at" yaml:"created_at"`
}

// Summary counts merged decisions per action.
func (p *Plan) Summary() map[delta.MergedAction]int {
	summary := make(map[delta.MergedAction]int)
	for _, m := range p.Merged {
		summary[m.Action]++
	}
	return summary
}

// Pending returns the decisions that require work.
func (p *Plan) Pending() []delta.MergedDelta {
	pending := make([]delta.MergedDelta, 0, len(p.Merged))
	for _, m := range p.Merged {
		if m.Action != delta.MergeNone {
			pending = append(pending, m)
		}
	}
	return pending
}

// Conflicts returns the paths that changed differently on both sides.
func (p *Plan) Conflicts() []string {
	var paths []string
	for _, m := range p.Merged {
		if m.HasConflict {
			paths = append(paths, m.Path)
		}
	}
	return paths
}

func (p *Plan) Empty() bool {
	return len(p.Pending()) == 0
}

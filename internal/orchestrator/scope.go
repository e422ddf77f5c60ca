package orchestrator

import (
	"strconv"

	"taskloom/pkg/models"
)

// ScopeChildSpecs computes the globally unique hierarchical id for every
// child in a spawn batch and resolves short sibling references.
//
// Pass 1 maps each declared short id (or the positional index when none is
// declared) to its scoped form, parentID + "-" + short. Pass 2 rewrites
// each child's own id and every dependency reference through that map.
// References that name no sibling pass through unchanged: they are assumed
// already qualified (an existing task, an ancestor, an uncle) and are
// validated during batch ingestion.
func ScopeChildSpecs(parentID string, specs []models.ChildTaskSpec) []models.ChildTaskSpec {
	scoped := make(map[string]string, len(specs))
	for i, spec := range specs {
		scoped[shortID(spec, i)] = parentID + "-" + shortID(spec, i)
	}

	out := make([]models.ChildTaskSpec, len(specs))
	for i, spec := range specs {
		rewritten := spec
		rewritten.ID = scoped[shortID(spec, i)]
		if len(spec.DependsOn) > 0 {
			deps := make([]string, len(spec.DependsOn))
			for j, dep := range spec.DependsOn {
				if qualified, ok := scoped[dep]; ok {
					deps[j] = qualified
				} else {
					deps[j] = dep
				}
			}
			rewritten.DependsOn = deps
		}
		out[i] = rewritten
	}
	return out
}

func shortID(spec models.ChildTaskSpec, index int) string {
	if spec.ID != "" {
		return spec.ID
	}
	return strconv.Itoa(index)
}

package merging

import (
	"fmt"
	"sort"

	"github.com/Ramsey-B/sage/pkg/diff"
	"github.com/Ramsey-B/sage/pkg/document"
	"github.com/Ramsey-B/sage/pkg/models"
)

// ThreeWayResult is the outcome of one three-way reconciliation: the document
// with every non-conflicting change applied, plus the paths both sides
// changed differently.
type ThreeWayResult struct {
	Merged    document.Value
	Conflicts []models.MergeConflict
}

// HasConflicts reports whether any path needs resolution.
func (r *ThreeWayResult) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// threeWay reconciles source and target against their common ancestor.
// Paths changed on one side only, or identically on both, merge
// automatically; paths changed differently on both sides become conflicts
// and keep the ancestor's value in the merged document until resolved.
func threeWay(engine *diff.Engine, base, source, target document.Value) (*ThreeWayResult, error) {
	sourceChanges := changesByPath(engine.Compare(base, source))
	targetChanges := changesByPath(engine.Compare(base, target))

	merged := base.Clone()
	var apply []models.DiffChange
	var conflicts []models.MergeConflict

	for path, sc := range sourceChanges {
		tc, both := targetChanges[path]
		if !both {
			apply = append(apply, sc)
			continue
		}
		if sameChange(sc, tc) {
			apply = append(apply, sc)
			continue
		}

		conflict := models.MergeConflict{Path: path}
		if baseValue, ok := base.GetPath(path); ok {
			cloned := baseValue.Clone()
			conflict.Base = &cloned
		}
		conflict.Source = sc.After
		conflict.Target = tc.After
		conflicts = append(conflicts, conflict)
	}

	for path, tc := range targetChanges {
		if _, both := sourceChanges[path]; !both {
			apply = append(apply, tc)
		}
	}

	if err := applyChanges(&merged, apply); err != nil {
		return nil, err
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	return &ThreeWayResult{Merged: merged, Conflicts: conflicts}, nil
}

// changesByPath indexes a diff result for pairwise comparison.
func changesByPath(result *diff.Result) map[string]models.DiffChange {
	byPath := make(map[string]models.DiffChange, len(result.Changes))
	for _, change := range result.Changes {
		byPath[change.Path] = change
	}
	return byPath
}

// sameChange reports whether two sides made the identical edit.
func sameChange(a, b models.DiffChange) bool {
	if a.Op != b.Op {
		return false
	}
	if (a.After == nil) != (b.After == nil) {
		return false
	}
	if a.After == nil {
		return true // both deletions
	}
	return a.After.Equal(*b.After)
}

// applyChanges writes a changeset onto doc. Additions and modifications land
// first in ascending path order so array appends extend the tail one element
// at a time; deletions last in descending order so trailing array elements go
// before leading ones and the remaining indices stay valid. Paths are ordered
// by parsed segments, with array indices compared numerically.
func applyChanges(doc *document.Value, changes []models.DiffChange) error {
	var sets, deletes []models.DiffChange
	for _, change := range changes {
		if change.Op == models.DiffOpDelete {
			deletes = append(deletes, change)
		} else {
			sets = append(sets, change)
		}
	}

	sort.Slice(sets, func(i, j int) bool { return document.ComparePaths(sets[i].Path, sets[j].Path) < 0 })
	sort.Slice(deletes, func(i, j int) bool { return document.ComparePaths(deletes[i].Path, deletes[j].Path) > 0 })

	for _, change := range sets {
		if change.After == nil {
			continue
		}
		if err := doc.SetPath(change.Path, change.After.Clone()); err != nil {
			return fmt.Errorf("apply %s at %q: %w", change.Op, change.Path, err)
		}
	}
	for _, change := range deletes {
		if err := doc.DeletePath(change.Path); err != nil {
			return fmt.Errorf("apply delete at %q: %w", change.Path, err)
		}
	}
	return nil
}

// resolveConflicts writes a resolved value per conflict onto the merged
// document and stamps the resolution metadata. A nil resolved value removes
// the path.
func resolveConflicts(doc *document.Value, conflicts []models.MergeConflict, strategy models.MergeStrategyType, pick func(models.MergeConflict) *document.Value) ([]models.MergeConflict, error) {
	resolved := make([]models.MergeConflict, len(conflicts))
	for i, conflict := range conflicts {
		value := pick(conflict)
		if value == nil {
			if err := doc.DeletePath(conflict.Path); err != nil {
				return nil, fmt.Errorf("resolve %q: %w", conflict.Path, err)
			}
		} else {
			cloned := value.Clone()
			if err := doc.SetPath(conflict.Path, cloned); err != nil {
				return nil, fmt.Errorf("resolve %q: %w", conflict.Path, err)
			}
			conflict.ResolvedValue = &cloned
		}
		conflict.Resolution = strategy
		resolved[i] = conflict
	}
	return resolved, nil
}

// Package diff implements deterministic structural comparison between two
// content documents. The walk is side-effect free; persistence and caching of
// results belong to the caller.
package diff

import (
	"sort"

	"github.com/Ramsey-B/sage/pkg/document"
	"github.com/Ramsey-B/sage/pkg/models"
)

// Result is the ordered changeset between a source and target document plus
// aggregate counts and the approximate word delta across textual leaves.
type Result struct {
	Changes            []models.DiffChange `json:"changes"`
	AdditionsCount     int                 `json:"additions_count"`
	ModificationsCount int                 `json:"modifications_count"`
	DeletionsCount     int                 `json:"deletions_count"`
	WordDelta          int                 `json:"word_delta"`
}

// HasChanges reports whether the documents differ at all.
func (r *Result) HasChanges() bool {
	return len(r.Changes) > 0
}

// Engine compares documents. It holds no state; one instance can be shared.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Compare walks both documents and returns the ordered change records.
// Object keys are visited sorted and array elements positionally, so the
// output is deterministic for any pair of inputs. Comparing a document with
// itself yields an empty result.
func (e *Engine) Compare(source, target document.Value) *Result {
	result := &Result{Changes: []models.DiffChange{}}
	e.compare("", source, target, result)
	result.WordDelta = document.WordCount(target) - document.WordCount(source)
	return result
}

func (e *Engine) compare(path string, source, target document.Value, result *Result) {
	if source.Equal(target) {
		return
	}

	if source.Kind() != target.Kind() {
		e.record(result, models.DiffOpModify, path, &source, &target)
		return
	}

	switch source.Kind() {
	case document.KindObject:
		e.compareObjects(path, source, target, result)
	case document.KindArray:
		e.compareArrays(path, source, target, result)
	default:
		e.record(result, models.DiffOpModify, path, &source, &target)
	}
}

func (e *Engine) compareObjects(path string, source, target document.Value, result *Result) {
	keys := map[string]bool{}
	for _, k := range source.Keys() {
		keys[k] = true
	}
	for _, k := range target.Keys() {
		keys[k] = true
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		childPath := document.JoinKey(path, k)
		sv, inSource := source.Field(k)
		tv, inTarget := target.Field(k)

		switch {
		case inSource && inTarget:
			e.compare(childPath, sv, tv, result)
		case inSource:
			e.record(result, models.DiffOpDelete, childPath, &sv, nil)
		default:
			e.record(result, models.DiffOpAdd, childPath, nil, &tv)
		}
	}
}

func (e *Engine) compareArrays(path string, source, target document.Value, result *Result) {
	sourceItems := source.Items()
	targetItems := target.Items()

	shared := len(sourceItems)
	if len(targetItems) < shared {
		shared = len(targetItems)
	}

	for i := 0; i < shared; i++ {
		e.compare(document.JoinIndex(path, i), sourceItems[i], targetItems[i], result)
	}
	for i := shared; i < len(targetItems); i++ {
		item := targetItems[i]
		e.record(result, models.DiffOpAdd, document.JoinIndex(path, i), nil, &item)
	}
	for i := shared; i < len(sourceItems); i++ {
		item := sourceItems[i]
		e.record(result, models.DiffOpDelete, document.JoinIndex(path, i), &item, nil)
	}
}

func (e *Engine) record(result *Result, op models.DiffOperation, path string, before, after *document.Value) {
	change := models.DiffChange{Path: path, Op: op}
	if before != nil {
		cloned := before.Clone()
		change.Before = &cloned
	}
	if after != nil {
		cloned := after.Clone()
		change.After = &cloned
	}
	result.Changes = append(result.Changes, change)

	switch op {
	case models.DiffOpAdd:
		result.AdditionsCount++
	case models.DiffOpModify:
		result.ModificationsCount++
	case models.DiffOpDelete:
		result.DeletionsCount++
	}
}

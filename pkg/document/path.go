package document

import (
	"fmt"
	"strconv"
	"strings"
)

// Paths address nodes inside a document: object fields joined with '.',
// array elements as '[i]'. Example: "modules[2].lessons[0].title".

type pathSegment struct {
	key     string
	index   int
	isIndex bool
}

// JoinKey appends an object field to a path prefix.
func JoinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// JoinIndex appends an array index to a path prefix.
func JoinIndex(prefix string, i int) string {
	return fmt.Sprintf("%s[%d]", prefix, i)
}

func parsePath(path string) ([]pathSegment, error) {
	if path == "" {
		return nil, fmt.Errorf("document: empty path")
	}

	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("document: invalid path %q", path)
		}

		key := part
		var indexes []int
		for {
			open := strings.IndexByte(key, '[')
			if open < 0 {
				break
			}
			closing := strings.IndexByte(key[open:], ']')
			if closing < 0 {
				return nil, fmt.Errorf("document: unterminated index in path %q", path)
			}
			idx, err := strconv.Atoi(key[open+1 : open+closing])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("document: invalid index in path %q", path)
			}
			indexes = append(indexes, idx)
			key = key[:open] + key[open+closing+1:]
		}

		if key != "" {
			segments = append(segments, pathSegment{key: key})
		}
		for _, idx := range indexes {
			segments = append(segments, pathSegment{index: idx, isIndex: true})
		}
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("document: invalid path %q", path)
	}
	return segments, nil
}

// ComparePaths orders two paths by their parsed segments, comparing array
// indices numerically so "tags[9]" sorts before "tags[10]". A shared prefix
// orders the shorter path first; unparseable paths fall back to plain string
// order.
func ComparePaths(a, b string) int {
	as, errA := parsePath(a)
	bs, errB := parsePath(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}

	for i := 0; i < len(as) && i < len(bs); i++ {
		sa, sb := as[i], bs[i]
		if sa.isIndex != sb.isIndex {
			// a field and an index never address the same container; order
			// fields first for determinism
			if sa.isIndex {
				return 1
			}
			return -1
		}
		if sa.isIndex {
			if sa.index != sb.index {
				if sa.index < sb.index {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(sa.key, sb.key); c != 0 {
			return c
		}
	}

	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	default:
		return 0
	}
}

// GetPath returns the node addressed by path.
func (v Value) GetPath(path string) (Value, bool) {
	segments, err := parsePath(path)
	if err != nil {
		return Null(), false
	}

	current := v
	for _, seg := range segments {
		if seg.isIndex {
			if current.kind != KindArray || seg.index >= len(current.arr) {
				return Null(), false
			}
			current = current.arr[seg.index]
			continue
		}
		if current.kind != KindObject {
			return Null(), false
		}
		next, ok := current.obj[seg.key]
		if !ok {
			return Null(), false
		}
		current = next
	}
	return current, true
}

// SetPath writes val at path, creating intermediate objects for missing keys.
// An array index equal to the current length appends; beyond it is an error.
func (v *Value) SetPath(path string, val Value) error {
	segments, err := parsePath(path)
	if err != nil {
		return err
	}
	return setSegments(v, segments, val)
}

func setSegments(v *Value, segments []pathSegment, val Value) error {
	if len(segments) == 0 {
		*v = val
		return nil
	}

	seg := segments[0]
	if seg.isIndex {
		if v.kind != KindArray {
			return fmt.Errorf("document: cannot index into %s", v.kind)
		}
		if seg.index > len(v.arr) {
			return fmt.Errorf("document: index %d out of range (len %d)", seg.index, len(v.arr))
		}
		if seg.index == len(v.arr) {
			v.arr = append(v.arr, Null())
		}
		return setSegments(&v.arr[seg.index], segments[1:], val)
	}

	if v.kind == KindNull {
		*v = Value{kind: KindObject, obj: map[string]Value{}}
	}
	if v.kind != KindObject {
		return fmt.Errorf("document: cannot set key %q on %s", seg.key, v.kind)
	}
	if v.obj == nil {
		v.obj = map[string]Value{}
	}

	child := v.obj[seg.key]
	if err := setSegments(&child, segments[1:], val); err != nil {
		return err
	}
	v.obj[seg.key] = child
	return nil
}

// DeletePath removes the node addressed by path. Removing a path that does
// not exist is a no-op so deletions apply idempotently.
func (v *Value) DeletePath(path string) error {
	segments, err := parsePath(path)
	if err != nil {
		return err
	}
	deleteSegments(v, segments)
	return nil
}

func deleteSegments(v *Value, segments []pathSegment) {
	seg := segments[0]

	if len(segments) == 1 {
		if seg.isIndex {
			if v.kind == KindArray && seg.index < len(v.arr) {
				v.arr = append(v.arr[:seg.index], v.arr[seg.index+1:]...)
			}
			return
		}
		if v.kind == KindObject {
			delete(v.obj, seg.key)
		}
		return
	}

	if seg.isIndex {
		if v.kind != KindArray || seg.index >= len(v.arr) {
			return
		}
		deleteSegments(&v.arr[seg.index], segments[1:])
		return
	}

	if v.kind != KindObject {
		return
	}
	child, ok := v.obj[seg.key]
	if !ok {
		return
	}
	deleteSegments(&child, segments[1:])
	v.obj[seg.key] = child
}

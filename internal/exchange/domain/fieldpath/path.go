// Package fieldpath resolves dotted, indexed field paths such as
// "condition.code.coding[0].code" against nested records.
//
// Resolution never fails loudly: a missing child, a nil pointer, an index out of
// range or an unparsable path all yield ("", false). Callers decide whether an
// absent value means "not present" or "not disclosed".
package fieldpath

import (
	"strconv"
	"strings"
)

// Accessor reads children and sequence elements from one record representation.
// The resolver itself knows nothing about concrete types.
type Accessor interface {
	// Child returns the named child of node, or false when node has none.
	Child(node any, name string) (any, bool)
	// Index returns element i of node, or false when node is not a sequence or
	// i is out of range.
	Index(node any, i int) (any, bool)
}

type segment struct {
	name    string
	indices []int
}

// Resolve walks path through root using the reflection accessor and returns the
// leaf's string form.
func Resolve(root any, path string) (string, bool) {
	return ResolveWith(Reflect{}, root, path)
}

// ResolveWith is Resolve with an explicit accessor.
func ResolveWith(acc Accessor, root any, path string) (string, bool) {
	segments, ok := parse(path)
	if !ok {
		return "", false
	}
	node := root
	for _, seg := range segments {
		if seg.name != "" {
			if node, ok = acc.Child(node, seg.name); !ok {
				return "", false
			}
		}
		for _, i := range seg.indices {
			if node, ok = acc.Index(node, i); !ok {
				return "", false
			}
		}
	}
	return Stringify(node)
}

// Valid reports whether path is syntactically well formed.
func Valid(path string) bool {
	_, ok := parse(path)
	return ok
}

func parse(path string) ([]segment, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	out := make([]segment, 0, len(parts))
	for _, part := range parts {
		seg, ok := parseSegment(part)
		if !ok {
			return nil, false
		}
		out = append(out, seg)
	}
	return out, true
}

func parseSegment(part string) (segment, bool) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		if part == "" || strings.ContainsRune(part, ']') {
			return segment{}, false
		}
		return segment{name: part}, true
	}
	seg := segment{name: part[:open]}
	if strings.ContainsRune(seg.name, ']') {
		return segment{}, false
	}
	rest := part[open:]
	for rest != "" {
		if rest[0] != '[' {
			return segment{}, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return segment{}, false
		}
		i, err := strconv.Atoi(rest[1:end])
		if err != nil || i < 0 {
			return segment{}, false
		}
		seg.indices = append(seg.indices, i)
		rest = rest[end+1:]
	}
	return seg, true
}

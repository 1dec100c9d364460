package operation

import "strings"

// Path addresses a location in the questionnaire tree as an ordered
// sequence of string segments, e.g. ["questions","0","display","prompt"].
type Path []string

func NewPath(segments ...string) Path {
	return Path(segments)
}

func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	result := make(Path, len(p))
	copy(result, p)
	return result
}

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Intersects reports whether one path is a prefix of the other,
// including equality.
func (p Path) Intersects(other Path) bool {
	minLen := len(p)
	if len(other) < minLen {
		minLen = len(other)
	}
	for i := 0; i < minLen; i++ {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether p is a strict prefix of child.
func (p Path) IsAncestorOf(child Path) bool {
	if len(p) >= len(child) {
		return false
	}
	for i, seg := range p {
		if child[i] != seg {
			return false
		}
	}
	return true
}

func (p Path) IsEmpty() bool {
	return len(p) == 0
}

func (p Path) Head() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

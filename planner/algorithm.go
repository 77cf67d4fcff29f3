package planner

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedJoinAlgorithm = errors.New("unsupported join algorithm")

// JoinAlgorithm is fixed per planner; it is not chosen per join.
type JoinAlgorithm int

const (
	NestedLoop JoinAlgorithm = iota
	BlockNested
	Hash
	Merge
)

func ParseJoinAlgorithm(name string) (JoinAlgorithm, error) {
	switch strings.ToLower(name) {
	case "nestedloop":
		return NestedLoop, nil
	case "blocknested", "":
		return BlockNested, nil
	case "hash":
		return Hash, nil
	case "merge":
		return Merge, nil
	}
	// index joins need index structures this engine doesn't have
	return 0, fmt.Errorf("%w %q, expected nestedloop, blocknested, hash or merge", ErrUnsupportedJoinAlgorithm, name)
}

func (a JoinAlgorithm) String() string {
	switch a {
	case NestedLoop:
		return "nestedloop"
	case BlockNested:
		return "blocknested"
	case Hash:
		return "hash"
	case Merge:
		return "merge"
	}
	return "unknown"
}

// equiOnly reports whether the algorithm can only evaluate "=" join terms.
func (a JoinAlgorithm) equiOnly() bool { return a == Hash || a == Merge }

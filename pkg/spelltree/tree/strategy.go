package tree

import (
	"fmt"

	"github.com/arcanist/spelltree/pkg/spelltree/internalerr"
)

// Strategy selects one of the five construction algorithms. A closed
// enum: adding a strategy means adding a constant and a dispatch arm.
type Strategy int

const (
	// StrategyClassic buckets by tier and forces depth == tier ordinal.
	StrategyClassic Strategy = iota
	// StrategyTree interleaves themes round-robin with convergence edges.
	StrategyTree
	// StrategyGraph runs a minimum spanning arborescence over similarity.
	StrategyGraph
	// StrategyThematic grows each theme as its own BFS branch.
	StrategyThematic
	// StrategyOracle asks the LLM for chains, with a clustering fallback.
	StrategyOracle
)

var strategyNames = map[Strategy]string{
	StrategyClassic:  "classic",
	StrategyTree:     "tree",
	StrategyGraph:    "graph",
	StrategyThematic: "thematic",
	StrategyOracle:   "oracle",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// LayoutStyle is the hint the renderer uses to place this tree.
func (s Strategy) LayoutStyle() string {
	switch s {
	case StrategyClassic:
		return "tiered"
	case StrategyGraph:
		return "arborescence"
	case StrategyThematic:
		return "branches"
	default:
		return "organic"
	}
}

// ParseStrategy maps a wire command name to a Strategy.
func ParseStrategy(command string) (Strategy, error) {
	switch command {
	case "build_tree_classic":
		return StrategyClassic, nil
	case "build_tree":
		return StrategyTree, nil
	case "build_tree_graph":
		return StrategyGraph, nil
	case "build_tree_thematic":
		return StrategyThematic, nil
	case "build_tree_oracle":
		return StrategyOracle, nil
	default:
		return 0, fmt.Errorf("%w: %q", internalerr.ErrUnknownStrategy, command)
	}
}

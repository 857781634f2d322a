package tree

// ValidationResult summarizes reachability and cycle checks for one
// category tree.
type ValidationResult struct {
	AllValid         bool     `json:"all_valid"`
	TotalNodes       int      `json:"total_nodes"`
	ReachableNodes   int      `json:"reachable_nodes"`
	UnreachableCount int      `json:"unreachable_count,omitempty"`
	UnreachableIDs   []string `json:"unreachable_ids,omitempty"`
	CycleCount       int      `json:"cycle_count,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

const maxRepairPasses = 20

// SimulateUnlocks runs the unlock fixed point from the root: a node
// unlocks once every one of its prerequisites is unlocked. Nodes without
// prerequisites never unlock on their own; only the root is free.
func SimulateUnlocks(a *Arena, rootID string) map[string]struct{} {
	unlocked := make(map[string]struct{})
	if a.Get(rootID) == nil {
		return unlocked
	}
	unlocked[rootID] = struct{}{}

	for changed := true; changed; {
		changed = false
		for _, n := range a.Nodes() {
			if _, ok := unlocked[n.ID]; ok {
				continue
			}
			if len(n.Prerequisites) == 0 {
				continue
			}
			met := true
			for _, p := range n.Prerequisites {
				if _, ok := unlocked[p]; !ok {
					met = false
					break
				}
			}
			if met {
				unlocked[n.ID] = struct{}{}
				changed = true
			}
		}
	}
	return unlocked
}

// SimulateUnlocksAll runs the unlock fixed point with several free
// roots at once, for arenas that hold a whole forest. Cross-category
// prerequisites resolve naturally because every root seeds the same
// unlocked set.
func SimulateUnlocksAll(a *Arena, rootIDs []string) map[string]struct{} {
	unlocked := make(map[string]struct{})
	for _, rootID := range rootIDs {
		if a.Get(rootID) != nil {
			unlocked[rootID] = struct{}{}
		}
	}
	if len(unlocked) == 0 {
		return unlocked
	}

	for changed := true; changed; {
		changed = false
		for _, n := range a.Nodes() {
			if _, ok := unlocked[n.ID]; ok {
				continue
			}
			if len(n.Prerequisites) == 0 {
				continue
			}
			met := true
			for _, p := range n.Prerequisites {
				if _, ok := unlocked[p]; !ok {
					met = false
					break
				}
			}
			if met {
				unlocked[n.ID] = struct{}{}
				changed = true
			}
		}
	}
	return unlocked
}

// FindUnreachable returns the ids not unlocked by the simulation, in
// arena order.
func FindUnreachable(a *Arena, rootID string) []string {
	unlocked := SimulateUnlocks(a, rootID)
	var out []string
	for _, id := range a.IDs() {
		if _, ok := unlocked[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// DetectCycles finds cycles in the children graph via DFS, returning one
// id path per cycle found.
func DetectCycles(a *Arena) [][]string {
	var cycles [][]string
	visited := make(map[string]struct{})
	inStack := make(map[string]struct{})
	var stack []string

	var dfs func(id string)
	dfs = func(id string) {
		if _, ok := inStack[id]; ok {
			for i, sid := range stack {
				if sid == id {
					cycle := append(append([]string{}, stack[i:]...), id)
					cycles = append(cycles, cycle)
					break
				}
			}
			return
		}
		if _, ok := visited[id]; ok {
			return
		}
		visited[id] = struct{}{}
		inStack[id] = struct{}{}
		stack = append(stack, id)

		if n := a.Get(id); n != nil {
			for _, childID := range n.Children {
				dfs(childID)
			}
		}

		stack = stack[:len(stack)-1]
		delete(inStack, id)
	}

	for _, id := range a.IDs() {
		if _, ok := visited[id]; !ok {
			dfs(id)
		}
	}
	return cycles
}

// Validate checks reachability, cycles, and branching for one tree.
// Problems are reported, never fatal.
func Validate(a *Arena, rootID string, maxChildren int) ValidationResult {
	result := ValidationResult{TotalNodes: a.Len()}

	if a.Get(rootID) == nil {
		result.Warnings = append(result.Warnings, "root node not found: "+rootID)
		return result
	}

	unlocked := SimulateUnlocks(a, rootID)
	result.ReachableNodes = len(unlocked)
	result.UnreachableCount = result.TotalNodes - result.ReachableNodes
	for _, id := range a.IDs() {
		if _, ok := unlocked[id]; !ok {
			result.UnreachableIDs = append(result.UnreachableIDs, id)
		}
	}

	result.CycleCount = len(DetectCycles(a))
	result.AllValid = result.UnreachableCount == 0 && result.CycleCount == 0
	return result
}

// ValidateForest checks reachability and cycles for an arena holding
// several category trees at once. Edges may cross categories, so the
// unlock simulation seeds every root together and cycles are counted
// over the whole graph.
func ValidateForest(a *Arena, rootIDs []string, maxChildren int) ValidationResult {
	result := ValidationResult{TotalNodes: a.Len()}

	var present []string
	for _, rootID := range rootIDs {
		if a.Get(rootID) == nil {
			result.Warnings = append(result.Warnings, "root node not found: "+rootID)
			continue
		}
		present = append(present, rootID)
	}
	if len(present) == 0 {
		return result
	}

	unlocked := SimulateUnlocksAll(a, present)
	result.ReachableNodes = len(unlocked)
	result.UnreachableCount = result.TotalNodes - result.ReachableNodes
	for _, id := range a.IDs() {
		if _, ok := unlocked[id]; !ok {
			result.UnreachableIDs = append(result.UnreachableIDs, id)
		}
	}

	result.CycleCount = len(DetectCycles(a))
	result.AllValid = result.UnreachableCount == 0 && result.CycleCount == 0
	return result
}

// FixUnreachable repairs orphaned nodes in up to maxRepairPasses passes.
// Unreachable prerequisites are stripped first; a node left with none is
// attached to the least-loaded reachable parent, or to the root when
// everything reachable is at capacity. Returns the number of fixes made;
// whatever is still unreachable afterwards is reported by Validate, not
// looped on forever.
func FixUnreachable(a *Arena, rootID string, maxChildren int) int {
	if a.Get(rootID) == nil {
		return 0
	}

	totalFixes := 0
	for pass := 0; pass < maxRepairPasses; pass++ {
		unreachable := FindUnreachable(a, rootID)
		if len(unreachable) == 0 {
			break
		}

		fixedAny := false
		for _, id := range unreachable {
			node := a.Get(id)
			unlocked := SimulateUnlocks(a, rootID)

			var blocking []string
			for _, p := range node.Prerequisites {
				if _, ok := unlocked[p]; !ok {
					blocking = append(blocking, p)
				}
			}

			if len(blocking) > 0 {
				for _, bp := range blocking {
					node.removePrerequisite(bp)
					if parent := a.Get(bp); parent != nil {
						parent.removeChild(id)
					}
				}
				totalFixes++
				fixedAny = true
				continue
			}

			if len(node.Prerequisites) == 0 {
				bestParent := ""
				bestChildCount := int(^uint(0) >> 1)
				for _, rid := range a.IDs() {
					if rid == id {
						continue
					}
					if _, ok := unlocked[rid]; !ok {
						continue
					}
					rn := a.Get(rid)
					if len(rn.Children) < maxChildren && len(rn.Children) < bestChildCount {
						bestChildCount = len(rn.Children)
						bestParent = rid
					}
				}

				if bestParent != "" {
					Link(a.Get(bestParent), node)
				} else {
					// Root over capacity beats an orphan.
					Link(a.Get(rootID), node)
				}
				totalFixes++
				fixedAny = true
			}
		}

		if !fixedAny {
			break
		}
	}
	return totalFixes
}

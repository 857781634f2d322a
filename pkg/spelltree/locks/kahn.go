package locks

// removeLockCycles runs Kahn's algorithm once over the combined graph of
// every category's structural edges plus every proposed lock edge. Lock
// edges may cross categories in nearby mode, so cycle detection has to
// see the whole forest at once: seeding one school at a time would leave
// cross-school prerequisites dangling and misreport their targets as
// cyclic. Nodes left with positive in-degree after the zero-in-degree
// queue drains sit on a cycle; every lock edge joining two such nodes is
// dropped. Structural edges are never touched.
func removeLockCycles(trees map[string]SchoolInput, locks []Edge) (kept, removed []Edge) {
	if len(locks) == 0 {
		return locks, nil
	}

	total := 0
	for _, in := range trees {
		total += len(in.Nodes)
	}
	inDegree := make(map[string]int, total)
	adjacency := make(map[string][]string, total)
	for _, in := range trees {
		for _, n := range in.Nodes {
			inDegree[n.ID] += 0
			for _, child := range n.Children {
				adjacency[n.ID] = append(adjacency[n.ID], child)
				inDegree[child]++
			}
		}
	}
	for _, lock := range locks {
		if _, ok := inDegree[lock.TargetID]; !ok {
			continue
		}
		if _, ok := inDegree[lock.PrerequisiteID]; !ok {
			continue
		}
		adjacency[lock.PrerequisiteID] = append(adjacency[lock.PrerequisiteID], lock.TargetID)
		inDegree[lock.TargetID]++
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed == len(inDegree) {
		return locks, nil
	}

	cyclic := make(map[string]struct{})
	for id, deg := range inDegree {
		if deg > 0 {
			cyclic[id] = struct{}{}
		}
	}

	for _, lock := range locks {
		_, srcCyclic := cyclic[lock.PrerequisiteID]
		_, dstCyclic := cyclic[lock.TargetID]
		if srcCyclic && dstCyclic {
			removed = append(removed, lock)
		} else {
			kept = append(kept, lock)
		}
	}
	return kept, removed
}

package pool

import "sort"

// PrioritizeContainers implements spec.md §4.7's host-balanced ordering:
// given a map from host to an ordered list of containers, it returns a
// global ordering that takes the i-th container of each host (in
// descending order of that host's list length) before taking any (i+1)-th
// container from any host. This is used to spread allocations evenly
// across hosts rather than exhausting one host's candidates before moving
// to the next.
//
// Ties between hosts with equal list length keep their iteration order
// over byHost, which -- as in the source this was distilled from -- is a
// map and therefore gives no stronger guarantee than "some fixed order for
// this call."
func PrioritizeContainers[T any](byHost map[string][]T) []T {
	keys := make([]string, 0, len(byHost))
	for k := range byHost {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return len(byHost[keys[i]]) > len(byHost[keys[j]])
	})

	type cursor struct {
		key string
		idx int
	}
	queue := make([]cursor, 0, len(keys))
	for _, k := range keys {
		if len(byHost[k]) > 0 {
			queue = append(queue, cursor{key: k})
		}
	}

	total := 0
	for _, v := range byHost {
		total += len(v)
	}
	out := make([]T, 0, total)
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		out = append(out, byHost[c.key][c.idx])
		c.idx++
		if c.idx < len(byHost[c.key]) {
			queue = append(queue, c)
		}
	}
	return out
}

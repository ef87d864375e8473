package pool

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Invariant 5 (spec.md §8): PrioritizeContainers never drops or duplicates
// an input, and it never takes a host's (i+1)-th container before every
// host with an i-th container has contributed one. Grounded on the
// teacher's own gopter-over-generated-shapes property-test style.
func TestProperty_PrioritizeContainersPreservesAndInterleaves(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("length and multiset are preserved", prop.ForAll(
		func(lens []int) bool {
			byHost, total := buildHostLists(lens)
			out := PrioritizeContainers(byHost)
			if len(out) != total {
				return false
			}
			return sameMultiset(flatten(byHost), out)
		},
		gen.SliceOfN(5, gen.IntRange(0, 6)),
	))

	properties.Property("depth never decreases and each host's own order is preserved", prop.ForAll(
		func(lens []int) bool {
			byHost, _ := buildHostLists(lens)
			out := PrioritizeContainers(byHost)
			nextIdx := map[string]int{} // host -> next expected index into its own list
			lastDepth := -1
			for _, v := range out {
				if v.idx < lastDepth {
					return false // a later (i+1)-th container must never precede an i-th
				}
				lastDepth = v.idx
				if v.idx != nextIdx[v.host] {
					return false // a host's own containers must come out 0,1,2,...
				}
				nextIdx[v.host] = v.idx + 1
			}
			return true
		},
		gen.SliceOfN(5, gen.IntRange(0, 6)),
	))

	properties.TestingRun(t)
}

type labeled struct {
	host string
	idx  int
}

func buildHostLists(lens []int) (map[string][]labeled, int) {
	byHost := map[string][]labeled{}
	total := 0
	for i, n := range lens {
		host := string(rune('a' + i))
		list := make([]labeled, n)
		for j := 0; j < n; j++ {
			list[j] = labeled{host: host, idx: j}
			total++
		}
		if n > 0 {
			byHost[host] = list
		}
	}
	return byHost, total
}

func flatten(byHost map[string][]labeled) []labeled {
	var out []labeled
	for _, v := range byHost {
		out = append(out, v...)
	}
	return out
}

func sameMultiset(a, b []labeled) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(l labeled) string { return l.host + "#" + string(rune('0'+l.idx)) }
	ak := make([]string, len(a))
	bk := make([]string, len(b))
	for i, v := range a {
		ak[i] = key(v)
	}
	for i, v := range b {
		bk[i] = key(v)
	}
	sort.Strings(ak)
	sort.Strings(bk)
	for i := range ak {
		if ak[i] != bk[i] {
			return false
		}
	}
	return true
}

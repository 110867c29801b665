package route

import (
	"github.com/neexbeast/tripplanner/internal/geo"
)

// eps is the minimum improvement for a 2-opt or end-anchor move to count.
const eps = 1e-12

// NearestNeighbor builds an open tour over every node of m starting at start,
// greedily stepping to the closest unvisited node. Ties go to the lower index.
func NearestNeighbor(m geo.Matrix, start int) []int {
	n := len(m)
	if n == 0 {
		return nil
	}
	visited := make([]bool, n)
	tour := make([]int, 0, n)

	cur := start
	visited[cur] = true
	tour = append(tour, cur)

	for len(tour) < n {
		next := -1
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			if next < 0 || m[cur][j] < m[cur][next] {
				next = j
			}
		}
		visited[next] = true
		tour = append(tour, next)
		cur = next
	}
	return tour
}

// TwoOpt improves an open tour by reversing segments tour[i..j] (1 <= i < j < n)
// until a full pass finds no strictly shortening reversal. The first node stays fixed.
// The input slice is not modified.
func TwoOpt(m geo.Matrix, tour []int) []int {
	t := append([]int(nil), tour...)
	n := len(t)
	if n < 3 {
		return t
	}

	improved := true
	for improved {
		improved = false
		for i := 1; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				if reversalDelta(m, t, i, j) < -eps {
					reverse(t, i, j)
					improved = true
				}
			}
		}
	}
	return t
}

// reversalDelta is the change in open-path length from reversing t[i..j], i >= 1.
func reversalDelta(m geo.Matrix, t []int, i, j int) float64 {
	a, b := t[i-1], t[i]
	c := t[j]
	delta := m[a][c] - m[a][b]
	if j+1 < len(t) {
		d := t[j+1]
		delta += m[b][d] - m[c][d]
	}
	return delta
}

func reverse(t []int, i, j int) {
	for i < j {
		t[i], t[j] = t[j], t[i]
		i++
		j--
	}
}

// AnchorEnd considers moving one of the last three nodes (never the first) to
// the end of the tour and applies the single best move when it strictly
// shortens the path plus the final hop to the end anchor. toEnd[k] is the
// distance from node k to the anchor. The input slice is not modified.
func AnchorEnd(m geo.Matrix, tour []int, toEnd []float64) []int {
	n := len(tour)
	best := append([]int(nil), tour...)
	if n < 2 {
		return best
	}
	bestCost := m.PathLength(best) + toEnd[best[n-1]]

	for k := max(1, n-3); k < n-1; k++ {
		cand := make([]int, 0, n)
		cand = append(cand, tour[:k]...)
		cand = append(cand, tour[k+1:]...)
		cand = append(cand, tour[k])

		if cost := m.PathLength(cand) + toEnd[cand[n-1]]; cost < bestCost-eps {
			best, bestCost = cand, cost
		}
	}
	return best
}

package preload

// Neighborhood returns the indices within radius of current in a cyclic
// sequence of n items, excluding the offset 0. Offsets are visited from -r to
// r, so for current=0, n=5, r=1 the result is [4 1]. Indices reached twice
// through wrapping are listed once.
func Neighborhood(current, n, radius int) []int {
	if n <= 0 || radius <= 0 {
		return nil
	}

	seen := make(map[int]struct{}, 2*radius)
	indices := make([]int, 0, 2*radius)
	for k := -radius; k <= radius; k++ {
		if k == 0 {
			continue
		}
		index := ((current+k)%n + n) % n
		if _, dup := seen[index]; dup {
			continue
		}
		seen[index] = struct{}{}
		indices = append(indices, index)
	}
	return indices
}

package detection

// SampleIndices spreads count frame indices evenly over total frames using
// i*total/count, dropping duplicates and keeping order. When count is at
// least total, every frame is returned.
func SampleIndices(total, count int) []int {
	if total <= 0 || count <= 0 {
		return nil
	}
	if count >= total {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}

	out := make([]int, 0, count)
	seen := make(map[int]struct{}, count)
	for i := 0; i < count; i++ {
		idx := i * total / count
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}

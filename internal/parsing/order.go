// Package parsing turns raw post records into render-ready cells on a
// bounded worker pool, parsing posts nearest the viewport first.
package parsing

// BidirectionalOrder returns the indices of an n-element list visited
// outward from focus: focus, focus+1, focus-1, focus+2, focus-2, ...
// Indices outside [0, n) are skipped until both ends are exhausted.
// A focus outside [0, n) is treated as 0.
func BidirectionalOrder(n, focus int) []int {
	if n <= 0 {
		return nil
	}
	if focus < 0 || focus >= n {
		focus = 0
	}

	out := make([]int, 0, n)
	out = append(out, focus)
	for step := 1; len(out) < n; step++ {
		if right := focus + step; right < n {
			out = append(out, right)
		}
		if left := focus - step; left >= 0 {
			out = append(out, left)
		}
	}
	return out
}

// partition splits order into at most n contiguous, non-empty chunks of
// near-equal size.
func partition(order []int, n int) [][]int {
	if len(order) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(order) {
		n = len(order)
	}
	size := (len(order) + n - 1) / n

	chunks := make([][]int, 0, n)
	for start := 0; start < len(order); start += size {
		end := min(start+size, len(order))
		chunks = append(chunks, order[start:end])
	}
	return chunks
}

package join

import "math"

// BestFactor returns the largest chunk size k <= available-2 such that size
// splits into equal chunks of k blocks. Two buffers stay reserved for the
// other input and the output.
func BestFactor(available, size int) int {
	avail := available - 2
	if avail <= 1 || size <= 1 {
		return 1
	}
	k := size
	i := 1.0
	for k > avail {
		i++
		k = int(math.Ceil(float64(size) / i))
	}
	return k
}

// chunks is the number of k sized chunks needed to cover size blocks.
func chunks(size, k int) int {
	if size <= 0 {
		return 0
	}
	return (size + k - 1) / k
}

// Package partition splits a task index space into balanced contiguous ranges
// for the static dispatch model.
package partition

// Partition is the half-open index range [Start, End) owned by one worker.
type Partition struct {
	WorkerID int
	Start    int
	End      int
}

func (p Partition) Size() int {
	return p.End - p.Start
}

// Effective returns the number of workers that will actually receive work:
// min(workers, n), or 0 when either is not positive.
func Effective(n, workers int) int {
	if n <= 0 || workers <= 0 {
		return 0
	}
	return min(n, workers)
}

// Split divides [0, n) among at most workers partitions. The first n%w'
// partitions get one extra item. Non-positive inputs yield nil.
func Split(n, workers int) []Partition {
	w := Effective(n, workers)
	if w == 0 {
		return nil
	}

	base, rest := n/w, n%w
	parts := make([]Partition, w)
	start := 0
	for i := range w {
		size := base
		if i < rest {
			size++
		}
		parts[i] = Partition{WorkerID: i, Start: start, End: start + size}
		start += size
	}
	return parts
}

package testutil

import (
	"sync"

	dErrors "proofdrop/pkg/domain-errors"
)

// ConcurrentResult counts the outcomes of one RunConcurrent call. Failures
// are bucketed by domain error code; errors without one count as
// CodeInternal.
type ConcurrentResult struct {
	Successes int32
	Failures  int32
	Codes     map[dErrors.Code]int32
}

// Count returns how many calls failed with code.
func (r *ConcurrentResult) Count(code dErrors.Code) int32 {
	return r.Codes[code]
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Failures
}

// RunConcurrent calls fn from n goroutines released together, so racing
// writers (double claims, overdrafts, nonce allocation) actually contend.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		start = make(chan struct{})
		res   = &ConcurrentResult{Codes: make(map[dErrors.Code]int32)}
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			err := fn(idx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				res.Successes++
				return
			}
			res.Failures++
			res.Codes[dErrors.CodeOf(err)]++
		}(i)
	}

	close(start)
	wg.Wait()
	return res
}

package testutil

import (
	"errors"
	"sync"

	dErrors "medssi/pkg/domain-errors"
	"medssi/pkg/platform/sentinel"
)

// ConcurrentResult tallies the outcomes of RunConcurrent.
type ConcurrentResult struct {
	Successes int32
	Errors    int32
	Conflicts int32
	NotFounds int32
	// ByCode counts generic errors that carry a domain error code.
	ByCode map[dErrors.Code]int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Conflicts + r.NotFounds
}

// RunConcurrent starts n goroutines, releases them together and tallies what
// fn returned. Store sentinels count as conflicts or not-founds.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}()
	}
	close(start)
	wg.Wait()

	res := &ConcurrentResult{ByCode: make(map[dErrors.Code]int32)}
	for _, err := range errs {
		res.record(err)
	}
	return res
}

func (r *ConcurrentResult) record(err error) {
	var de *dErrors.Error
	switch {
	case err == nil:
		r.Successes++
	case errors.Is(err, sentinel.ErrConflict):
		r.Conflicts++
	case errors.Is(err, sentinel.ErrNotFound):
		r.NotFounds++
	default:
		r.Errors++
		if errors.As(err, &de) {
			r.ByCode[de.Code]++
		}
	}
}

package testutil

import (
	"sync"

	dErrors "audittrail/pkg/domain-errors"
)

// Outcomes counts the results of concurrent calls by domain error code.
// Plain errors are counted under dErrors.CodeInternal.
type Outcomes struct {
	mu     sync.Mutex
	ok     int
	byCode map[dErrors.Code]int
}

func (o *Outcomes) record(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		o.ok++
		return
	}
	o.byCode[dErrors.CodeOf(err)]++
}

// OK is the number of calls that returned nil.
func (o *Outcomes) OK() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ok
}

// Failed is the number of calls that returned an error with code.
func (o *Outcomes) Failed(code dErrors.Code) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.byCode[code]
}

func (o *Outcomes) Total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.ok
	for _, c := range o.byCode {
		n += c
	}
	return n
}

// RunConcurrent starts n goroutines, releases them together and waits for
// all of them before returning the tally.
func RunConcurrent(n int, fn func(idx int) error) *Outcomes {
	out := &Outcomes{byCode: make(map[dErrors.Code]int)}
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			<-start
			out.record(fn(i))
		})
	}
	close(start)
	wg.Wait()
	return out
}

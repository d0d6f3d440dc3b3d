package util

import "sync"

// GoWithWaitGroup runs fn in a goroutine with an optional *sync.WaitGroup to
// track when fn finishes executing.
func GoWithWaitGroup(wg *sync.WaitGroup, fn func()) {
	if wg == nil {
		go fn()
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

// IgnoreError calls fn and drops its error. Example `defer util.IgnoreError(file.Close)`
func IgnoreError(fn func() error) {
	_ = fn()
}

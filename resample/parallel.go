package resample

import "sync"

// runParallel spreads unit indices [0, n) over at most workers goroutines.
func runParallel(n, workers int, fn func(i int)) {
	units := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range units {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		units <- i
	}
	close(units)
	wg.Wait()
}

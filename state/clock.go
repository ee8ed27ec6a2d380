package state

import "time"

var processStart = time.Now()

// nowSeconds returns a monotonic float64 seconds value anchored at
// process start, suitable for the timestamp field on Red notifications.
func nowSeconds() float64 {
	return time.Since(processStart).Seconds()
}

package orchestration

import "fmt"

// runPanicSafe converts a worker panic into an error so one failing pipeline
// stage cannot take down the process while its siblings hold buffers open.
func runPanicSafe(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s worker panicked: %v", name, r)
		}
	}()
	return fn()
}

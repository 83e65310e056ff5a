package app

import (
	"os"
	"sync"
)

const testModeEnv = "MERIDIAN_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the binaries should skip their runtime side
// effects. Integration harnesses set MERIDIAN_TEST_MODE=1 to exercise the
// startup wiring without opening sockets or dialing backends.
func InTestMode() bool {
	return inTestMode()
}

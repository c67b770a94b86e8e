package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// testDefaults keeps configuration deterministic regardless of the host.
var testDefaults = map[string]string{
	"MADRASA_TEST_MODE": "1",
	"APP_TIMEZONE":      "UTC",
	"LOG_FORMAT":        "json",
}

func ensureTestMode() {
	once.Do(func() {
		for key, value := range testDefaults {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}

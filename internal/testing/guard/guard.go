// Package guard switches the process into test mode when imported, so packages
// that start servers or workers in init paths stay inert under go test.
package guard

import "os"

func init() {
	if os.Getenv("MADRASA_TEST_MODE") == "" {
		_ = os.Setenv("MADRASA_TEST_MODE", "1")
	}
}

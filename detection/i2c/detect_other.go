//go:build !linux

package i2c

import (
	"github.com/ZaparooProject/go-fhmac/detection"
)

// findBuses is a stub for platforms without /dev/i2c-* buses
func findBuses() ([]busInfo, error) {
	return nil, detection.ErrUnsupportedPlatform
}

func scanBus(string) []uint16 {
	return nil
}

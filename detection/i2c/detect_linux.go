//go:build linux

package i2c

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const (
	// i2cSlave is the ioctl command to set slave address
	i2cSlave = 0x0703

	// i2cFuncs is the ioctl command to get adapter functionality
	i2cFuncs = 0x0705

	// i2cFuncI2C indicates plain I2C support
	i2cFuncI2C = 0x00000001

	firstAddr = 0x08
	lastAddr  = 0x77
)

// findBuses discovers the I2C adapters that support plain I2C transfers
func findBuses() ([]busInfo, error) {
	matches, err := filepath.Glob("/dev/i2c-*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan for I2C devices: %w", err)
	}

	buses := make([]busInfo, 0, len(matches))
	for _, path := range matches {
		var busNum int
		if _, err := fmt.Sscanf(filepath.Base(path), "i2c-%d", &busNum); err != nil {
			continue
		}
		if !supportsI2C(path) {
			continue
		}
		buses = append(buses, busInfo{Path: path, Number: busNum})
	}
	return buses, nil
}

func supportsI2C(path string) bool {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return false
	}
	defer func() { _ = unix.Close(fd) }()

	funcs, err := unix.IoctlGetUint32(fd, i2cFuncs)
	if err != nil {
		return false
	}
	return funcs&i2cFuncI2C != 0
}

// scanBus returns the addresses on busPath that answer a one byte read
func scanBus(busPath string) []uint16 {
	fd, err := unix.Open(busPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil
	}
	defer func() { _ = unix.Close(fd) }()

	var found []uint16
	buf := make([]byte, 1)
	for addr := firstAddr; addr <= lastAddr; addr++ {
		if err := unix.IoctlSetInt(fd, i2cSlave, addr); err != nil {
			continue
		}
		if _, err := unix.Read(fd, buf); err == nil {
			found = append(found, uint16(addr))
		}
	}
	return found
}

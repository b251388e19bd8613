// go-fhmac
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-fhmac.
//
// go-fhmac is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-fhmac is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-fhmac; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB devices that must not be opened during
// detection. Format: VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno, resets when DTR is raised
		"2341:0001", // Arduino Uno (old bootloader)
		"1366:0105", // SEGGER J-Link CDC, a debug console not a radio
	}
}

// knownRadios maps USB bridges radio co-processors ship behind to a
// description.
var knownRadios = map[string]string{
	"0451:BEF3": "TI XDS110 (CC13xx/CC26xx LaunchPad)",
	"0451:16A8": "TI CC1352/CC2652 USB CDC",
	"10C4:EA60": "Silicon Labs CP210x",
	"0403:6015": "FTDI FT231X",
}

// KnownRadio reports whether vidpid is a bridge radio co-processors are
// commonly found behind, and names it.
func KnownRadio(vidpid string) (string, bool) {
	name, ok := knownRadios[ParseVIDPID(vidpid)]
	return name, ok
}

// IsBlocked reports whether vidpid matches a blocklist entry. Entries may
// use any format ParseVIDPID understands.
func IsBlocked(vidpid string, blocklist []string) bool {
	id := ParseVIDPID(vidpid)
	if id == "" {
		return false
	}
	for _, entry := range blocklist {
		if ParseVIDPID(entry) == id {
			return true
		}
	}
	return false
}

var (
	vidKeys = []string{"VID:", "VID=", "VENDOR="}
	pidKeys = []string{"PID:", "PID=", "PRODUCT="}
)

// ParseVIDPID normalizes a USB id to upper case "VID:PID". It accepts
// "0451:BEF3", "VID:0451 PID:BEF3" and "vendor=0451 product=bef3" and
// returns "" for anything else.
func ParseVIDPID(descriptor string) string {
	d := strings.ToUpper(strings.TrimSpace(descriptor))
	vid, pid := field(d, vidKeys), field(d, pidKeys)
	if vid != "" && pid != "" {
		return vid + ":" + pid
	}

	vid, pid, ok := strings.Cut(d, ":")
	if ok && isHex(vid) && isHex(pid) {
		return d
	}
	return ""
}

// field returns the hex digits following the first key found in d.
func field(d string, keys []string) string {
	for _, key := range keys {
		if _, rest, ok := strings.Cut(d, key); ok {
			end := strings.IndexFunc(rest, func(r rune) bool { return !isHexDigit(r) })
			if end < 0 {
				end = len(rest)
			}
			return rest[:end]
		}
	}
	return ""
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') || (r >= 'a' && r <= 'f')
}

func isHex(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return !isHexDigit(r) }) < 0
}

// IsPathIgnored reports whether devicePath is in ignorePaths. Paths are
// compared cleaned and case-insensitively, so COM ports and /dev nodes
// both match however they were typed.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, p := range ignorePaths {
		if p != "" && normalizedPath(p) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

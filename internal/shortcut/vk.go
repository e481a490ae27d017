// SPDX-License-Identifier: MIT

package shortcut

import (
	"strconv"
	"strings"
)

// defaultVK maps the key names accepted in a binding spec to their
// Win32 virtual-key codes. Letters and digits use their ASCII value,
// matching VK_A..VK_Z / VK_0..VK_9; function keys use VK_F1..VK_F24.
var defaultVK = buildDefaultVK()

func buildDefaultVK() map[string]uint32 {
	m := make(map[string]uint32, 64)
	for c := 'A'; c <= 'Z'; c++ {
		m[string(c)] = uint32(c)
	}
	for c := '0'; c <= '9'; c++ {
		m[string(c)] = uint32(c)
	}
	for i := 1; i <= 24; i++ {
		m[fKeyName(i)] = 0x70 + uint32(i) - 1 // VK_F1 == 0x70
	}
	m["ESC"] = 0x1B
	m["ESCAPE"] = 0x1B
	m["SPACE"] = 0x20
	m["TAB"] = 0x09
	m["ENTER"] = 0x0D
	m["RETURN"] = 0x0D
	m["PAUSE"] = 0x13
	m["PRINTSCREEN"] = 0x2C
	m["INSERT"] = 0x2D
	m["DELETE"] = 0x2E
	m["HOME"] = 0x24
	m["END"] = 0x23
	return m
}

func fKeyName(n int) string {
	return "F" + strconv.Itoa(n)
}

// DefaultVKLookup resolves a key name (case-insensitive) to its
// Win32 virtual-key code, for use with ParseBinding.
func DefaultVKLookup(name string) (uint32, bool) {
	vk, ok := defaultVK[strings.ToUpper(strings.TrimSpace(name))]
	return vk, ok
}

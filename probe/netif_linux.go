//go:build linux

package probe

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const sysClassNet = "/sys/class/net"

// isVirtual reports whether the kernel registered name as a virtual device.
func isVirtual(name string) bool {
	_, err := os.Stat(filepath.Join("/sys/devices/virtual/net", name))
	return err == nil
}

// parentIndex returns the index of the link name is stacked on (VLANs, macvlans).
func parentIndex(name string, index int) (int, bool) {
	data, err := os.ReadFile(filepath.Join(sysClassNet, name, "iflink"))
	if err != nil {
		return 0, false
	}
	link, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || link == index || link <= 0 {
		return 0, false
	}
	return link, true
}

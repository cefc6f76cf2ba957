//go:build !linux

package probe

func isVirtual(string) bool { return false }

func parentIndex(string, int) (int, bool) { return 0, false }

//go:build !linux

package batch

func logChildUsage() {}

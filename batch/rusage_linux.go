//go:build linux

package batch

import (
	"time"

	"github.com/grailbio/base/log"
	"golang.org/x/sys/unix"
)

// logChildUsage reports the aggregate resource usage of the samtools
// children reaped so far.
func logChildUsage() {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_CHILDREN, &ru); err != nil {
		log.Debug.Printf("getrusage: %v", err)
		return
	}
	log.Printf("children: maxrss %d MB, user %s, sys %s",
		ru.Maxrss/1024,
		time.Duration(ru.Utime.Nano()).Round(time.Millisecond),
		time.Duration(ru.Stime.Nano()).Round(time.Millisecond))
}

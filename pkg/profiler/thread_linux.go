//go:build linux

package profiler

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

func currentThreadID() (int64, bool) {
	return int64(unix.Gettid()), true
}

// threadName reads the kernel's name for a thread of this process.
func threadName(tid int64) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/self/task/%d/comm", tid))
	if err != nil {
		return "thread"
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "thread"
	}
	return name
}

//go:build !linux

package profiler

func currentThreadID() (int64, bool) {
	return 0, false
}

func threadName(int64) string {
	return "thread"
}

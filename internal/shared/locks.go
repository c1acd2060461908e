package shared

import "fmt"

// RunLockKey builds the lock key guarding one report type. Runs of the same
// type exclude each other whatever period they target.
func RunLockKey(kind string) string {
	return fmt.Sprintf("stockrecon:run:%s:lock", kind)
}

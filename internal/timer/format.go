package timer

import (
	"fmt"
	"time"
)

// FormatDuration renders d as "{minutes}m {seconds}s", e.g. 125s -> "2m 5s".
// Sub-second remainders are dropped and negative durations render as zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

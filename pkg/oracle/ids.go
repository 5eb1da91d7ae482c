package oracle

import (
	"strconv"

	"github.com/edgeandnode/qos-oracle/pkg/config"
)

// CompoundID joins two id components with the fixed separator. All
// composite entity ids are built this way so re-processing the same inputs
// regenerates the same ids.
func CompoundID(a, b string) string {
	return a + "-" + b
}

// DayNumber maps a unix-seconds timestamp to its rollup day number.
func DayNumber(ts int64, launchDay int64) int64 {
	return ts/config.SecondsPerDay - launchDay
}

// DayBounds returns the [start, end) unix-seconds bounds of the day bucket
// containing ts. Both are derived from the same floor division as the day
// number and are never set independently.
func DayBounds(ts int64) (start, end int64) {
	start = (ts / config.SecondsPerDay) * config.SecondsPerDay
	return start, start + config.SecondsPerDay
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

package chip

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// relativeMagnitudes follow Home Assistant's frontend for short spans: "now" under a minute,
// then minutes, hours and days.
var relativeMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "now", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: humanize.Day, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 day %s", DivBy: 1},
	{D: time.Duration(math.MaxInt64), Format: "%d days %s", DivBy: humanize.Day},
}

func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.CustomRelTime(t, now, "ago", "from now", relativeMagnitudes)
}

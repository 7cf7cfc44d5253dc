// Package schedule compiles a job's period or timespec into a systemd
// OnCalendar= expression, following the dispatch table in
// generate_timer_unit (spec §4.5).
package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sysdcron/generator/internal/job"
)

// timeUnitKeywords are the keyword periods systemd accepts verbatim as an
// OnCalendar value, used when both the start-hour and delay are zero.
var timeUnitKeywords = map[string]bool{
	"daily":         true,
	"weekly":        true,
	"monthly":       true,
	"quarterly":     true,
	"semi-annually": true,
	"yearly":        true,
}

// dayNumToName maps a compiled weekday integer (0=Sun..6=Sat) to its
// three-letter name.
var dayNumToName = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// mondayFirstOrder and sundayFirstOrder list weekday integers in the two
// canonical emission orders the W flag (spec §4.3/§9) selects between.
var mondayFirstOrder = []int{1, 2, 3, 4, 5, 6, 0}
var sundayFirstOrder = []int{0, 1, 2, 3, 4, 5, 6}

// Result is what the schedule compiler decided for one job.
type Result struct {
	// Schedule is the OnCalendar= expression. Empty means the job should
	// use OnBootSec= instead (delay-only timers: plain @reboot).
	Schedule string
	// Delay is the (possibly adjusted) boot delay in minutes: reboot
	// jobs force a minimum of 1, hourly jobs with a nonzero delay fold
	// it into Schedule and reset it to 0; midnight jobs with a nonzero
	// delay fold it into Schedule and keep it.
	Delay int
	// Persistent is the (possibly overridden) persistence flag: reboot
	// and minutely jobs are never persistent regardless of the
	// PERSISTENT directive.
	Persistent bool
	// Skip is true when the job must not be emitted at all: a @reboot
	// job seen after a daemon-reload marker already exists, or a
	// timespec job whose compiled field set is empty in month/day/
	// hour/minute.
	Skip bool
}

// Compile dispatches on j.Kind. daemonReload reports whether a reboot
// marker from a previous generator run is present (spec §4.7): once that
// marker exists, @reboot jobs are dropped rather than re-armed.
func Compile(j *job.Job, daemonReload bool) Result {
	if j.Kind == job.KindNone {
		return compileTimespec(j)
	}
	return compileKeyword(j, daemonReload)
}

func compileKeyword(j *job.Job, daemonReload bool) Result {
	hour := j.StartHour
	delay := j.BootDelay
	persistent := j.Persistent

	period := j.Keyword
	if j.Kind == job.KindDays {
		period = strconv.Itoa(j.DayCount)
	}

	switch {
	case period == "reboot":
		if daemonReload {
			return Result{Skip: true}
		}
		if delay == 0 {
			delay = 1
		}
		return Result{Schedule: "", Delay: delay, Persistent: false}

	case period == "minutely":
		return Result{Schedule: "minutely", Delay: delay, Persistent: false}

	case period == "hourly" && delay == 0:
		return Result{Schedule: "hourly", Delay: delay, Persistent: persistent}

	case period == "hourly":
		sched := fmt.Sprintf("*-*-* *:%d:0", delay)
		return Result{Schedule: sched, Delay: 0, Persistent: persistent}

	case period == "midnight" && delay == 0:
		return Result{Schedule: "daily", Delay: delay, Persistent: persistent}

	case period == "midnight":
		sched := fmt.Sprintf("*-*-* 0:%d:0", delay)
		return Result{Schedule: sched, Delay: delay, Persistent: persistent}

	case timeUnitKeywords[period] && hour == 0 && delay == 0:
		return Result{Schedule: period, Delay: delay, Persistent: persistent}

	case period == "daily":
		return Result{Schedule: fmt.Sprintf("*-*-* %d:%d:0", hour, delay), Delay: delay, Persistent: persistent}

	case period == "weekly":
		return Result{Schedule: fmt.Sprintf("Mon *-*-* %d:%d:0", hour, delay), Delay: delay, Persistent: persistent}

	case period == "monthly":
		return Result{Schedule: fmt.Sprintf("*-*-1 %d:%d:0", hour, delay), Delay: delay, Persistent: persistent}

	case period == "quarterly":
		return Result{Schedule: fmt.Sprintf("*-1,4,7,10-1 %d:%d:0", hour, delay), Delay: delay, Persistent: persistent}

	case period == "semi-annually":
		return Result{Schedule: fmt.Sprintf("*-1,7-1 %d:%d:0", hour, delay), Delay: delay, Persistent: persistent}

	case period == "yearly":
		return Result{Schedule: fmt.Sprintf("*-1-1 %d:%d:0", hour, delay), Delay: delay, Persistent: persistent}

	default:
		n, err := strconv.Atoi(period)
		if err != nil {
			// unknown schedule: pass the token through verbatim. No
			// diagnostic is logged for it, here or by the caller.
			return Result{Schedule: period, Delay: delay, Persistent: persistent}
		}
		if n > 31 {
			months := int(float64(n)/30 + 0.5)
			return Result{Schedule: fmt.Sprintf("*-1/%d-1 %d:%d:0", months, hour, delay), Delay: delay, Persistent: persistent}
		}
		return Result{Schedule: fmt.Sprintf("*-*-1/%d %d:%d:0", n, hour, delay), Delay: delay, Persistent: persistent}
	}
}

func compileTimespec(j *job.Job) Result {
	ts := j.Timespec

	var dows string
	if !ts.WeekdaysStar {
		present := make(map[int]bool, len(ts.Weekdays))
		for _, d := range ts.Weekdays {
			present[d] = true
		}
		order := mondayFirstOrder
		if ts.WeekdayStartsSunday {
			order = sundayFirstOrder
		}
		var names []string
		for _, d := range order {
			if present[d] {
				names = append(names, dayNumToName[d])
			}
		}
		if len(names) > 0 {
			dows = strings.Join(names, ",") + " "
		}
	}

	months := dropZero(ts.Months)
	days := dropZero(ts.Days)
	if (!ts.MonthsStar && len(months) == 0) ||
		(!ts.DaysStar && len(days) == 0) ||
		(!ts.HoursStar && len(ts.Hours) == 0) ||
		(!ts.MinutesStar && len(ts.Minutes) == 0) {
		return Result{Skip: true}
	}

	monthField := fieldExpr(months, ts.MonthsStar)
	dayField := fieldExpr(days, ts.DaysStar)
	hourField := fieldExpr(ts.Hours, ts.HoursStar)
	minuteField := fieldExpr(ts.Minutes, ts.MinutesStar)

	schedule := fmt.Sprintf("%s*-%s-%s %s:%s:00", dows, monthField, dayField, hourField, minuteField)
	return Result{Schedule: schedule, Delay: j.BootDelay, Persistent: j.Persistent}
}

func dropZero(values []int) []int {
	out := make([]int, 0, len(values))
	for _, v := range values {
		if v != 0 {
			out = append(out, v)
		}
	}
	return out
}

func fieldExpr(values []int, star bool) string {
	if star {
		return "*"
	}
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = strconv.Itoa(v)
	}
	return strings.Join(strs, ",")
}

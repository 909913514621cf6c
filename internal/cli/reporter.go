package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/padlokk/cage/internal/util"
)

// reporter prints operation status to stderr, trimmed from the teacher's
// progress-bar Reporter down to the status/error/success lines cage's
// adapter (no fractional-progress callback, operations complete whole
// files rather than streaming bytes with a rate) can actually produce.
type reporter struct {
	quiet bool
}

func newReporter(quiet bool) *reporter {
	return &reporter{quiet: quiet}
}

func (r *reporter) status(format string, args ...any) {
	if r.quiet {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func (r *reporter) errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

func (r *reporter) success(format string, args ...any) {
	if r.quiet {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// throughput sums the size of paths on disk and renders it alongside the
// elapsed time since start and the average speed, in the same
// Sizeify/Statify shape the teacher's progress bar used per-update.
func (r *reporter) throughput(paths []string, start time.Time) string {
	var total int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	_, speedMiBs, _ := util.Statify(total, total, start)
	elapsed := util.Timeify(int(time.Since(start).Seconds()))
	return fmt.Sprintf("%s in %s (%.2f MiB/s)", util.Sizeify(total), elapsed, speedMiBs)
}

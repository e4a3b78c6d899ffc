package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/mirrorget/mirrorget/internal/scheduler"
)

// FormatBytes converts bytes to human-readable form
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed formats a transfer rate from a byte count and elapsed seconds
func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed == 0 {
		return "0 B/s"
	}
	bps := float64(bytes) / elapsed
	formatted := FormatBytes(uint64(bps))
	return formatted[:len(formatted)-1] + "B/s"
}

func separator() string {
	width := 60
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = min(w, 100)
	}
	return detailStyle.Render(strings.Repeat(StyleSymbols["hline"], width))
}

// PrintSummary renders the end-of-run report: counts plus one line per
// failed file with its reason.
func PrintSummary(sum scheduler.Summary, elapsed time.Duration) {
	fmt.Println(separator())
	PrintHeader(fmt.Sprintf("Finished in %s", elapsed.Round(time.Millisecond)))
	PrintSuccess(fmt.Sprintf("%s %d file(s) downloaded or already complete", StyleSymbols["pass"], sum.Succeeded))
	if sum.Bytes > 0 {
		PrintDetail(fmt.Sprintf("  %s at %s", FormatBytes(uint64(sum.Bytes)), FormatSpeed(sum.Bytes, elapsed.Seconds())))
	}
	if sum.Failed == 0 {
		return
	}
	PrintError(fmt.Sprintf("%s %d file(s) failed", StyleSymbols["fail"], sum.Failed))
	for _, failure := range sum.Failures {
		PrintError(fmt.Sprintf("  %s %s", StyleSymbols["arrow"], failure.LocalPath))
		PrintDetail(fmt.Sprintf("    %s (%s)", failure.Reason, failure.URL))
	}
}

// PrintListing renders discovered files without downloading them.
func PrintListing(paths []string) {
	for _, p := range paths {
		PrintInfo(fmt.Sprintf("%s %s", StyleSymbols["bullet"], p))
	}
	fmt.Println(separator())
	PrintHeader(fmt.Sprintf("%d file(s) found", len(paths)))
}

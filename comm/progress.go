package comm

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/cheggaaa/pb"
)

var bar *pb.ProgressBar

// ProgressTheme contains all the characters used to draw the bar in a
// given terminal/locale.
type ProgressTheme struct {
	BarStart string
	BarEnd   string
	Current  string
	Empty    string
	OpSign   string
	StatSign string
}

var themes = map[string]*ProgressTheme{
	"unicode": {"▐", "▌", "▓", "░", "•", "✓"},
	"ascii":   {"|", "|", "#", "-", ">", "<"},
	"cp437":   {"▐", "▌", "█", "░", "∙", "√"},
}

func (th *ProgressTheme) apply(b *pb.ProgressBar) {
	b.BarStart = th.BarStart
	b.BarEnd = th.BarEnd
	b.Current = th.Current
	b.Empty = th.Empty
}

func getCharset() string {
	if runtime.GOOS == "windows" && os.Getenv("OS") != "CYGWIN" {
		return "cp437"
	}

	const utf8 = ".UTF-8"
	if strings.Contains(os.Getenv("LC_ALL"), utf8) ||
		os.Getenv("LC_CTYPE") == "UTF-8" ||
		strings.Contains(os.Getenv("LANG"), utf8) {
		return "unicode"
	}

	return "ascii"
}

var theme = themes[getCharset()]

// GetTheme returns the theme used to draw the progress bar.
func GetTheme() *ProgressTheme {
	return theme
}

// SetTheme overrides the autodetected charset with name ("unicode",
// "ascii", or "cp437"), as loaded from rombp.toml's theme key. An empty
// name leaves the autodetected theme in place. An unknown name is
// reported back to the caller; the autodetected theme is kept so a typo
// in config never breaks rendering.
func SetTheme(name string) error {
	if name == "" {
		return nil
	}

	th, ok := themes[name]
	if !ok {
		return fmt.Errorf("comm: unknown theme %q", name)
	}
	theme = th
	return nil
}

// StartProgress begins a period in which hunk/action progress is
// regularly printed. total is an estimated unit count — there's no way
// to know the true hunk/action count ahead of a full decode pass, so
// callers pass a rough guess derived from patch file size; the bar
// itself makes no correctness claim, only a visual one. A total of 0
// draws a counter with no percentage, which is honest when no estimate
// is available.
func StartProgress(total int64) {
	if bar != nil || settings.noProgress || settings.json {
		return
	}

	bar = pb.New64(total)
	bar.ShowTimeLeft = total > 0
	bar.ShowPercent = total > 0
	bar.ShowBar = total > 0
	bar.SetMaxWidth(80)
	theme.apply(bar)
	bar.Start()
}

// SetHunkCount updates the bar to reflect n hunks/actions applied so
// far. A no-op before StartProgress or after EndProgress.
func SetHunkCount(n uint64) {
	if bar == nil {
		return
	}
	bar.Set64(int64(n))
}

// EndProgress stops refreshing the progress bar, leaving its final state
// printed on its own line.
func EndProgress() {
	if bar == nil {
		return
	}
	bar.Finish()
	bar = nil
}

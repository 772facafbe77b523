// Package comm is the only place in this tree allowed to write to
// stdout/stderr outside of cmd/rombp/main.go's final exit-code decision;
// every other package returns errors and leaves rendering to the caller.
package comm

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var settings = &struct {
	noProgress bool
	quiet      bool
	verbose    bool
	json       bool
}{}

// Options carries the "how to report it" half of a run, as opposed to
// Command's "what to do": whether to draw a progress bar, whether to
// emit debug-level lines, and whether to speak JSON-lines instead of a
// terminal UI. It never crosses into the decoder packages — only comm
// and cmd/rombp construct or read one.
type Options struct {
	NoProgress bool
	Verbose    bool
	JSON       bool
}

// Configure sets all logging/rendering options in one go.
func Configure(opts Options) {
	settings.noProgress = opts.NoProgress
	settings.verbose = opts.Verbose
	settings.json = opts.JSON
}

type jsonMessage map[string]interface{}

// Opf prints a formatted string informing the user which operation is
// underway.
func Opf(format string, args ...interface{}) {
	Logf("%s %s", theme.OpSign, fmt.Sprintf(format, args...))
}

// Statf prints a formatted string informing the user how an operation
// concluded.
func Statf(format string, args ...interface{}) {
	Logf("%s %s", theme.StatSign, fmt.Sprintf(format, args...))
}

// Logf sends a formatted informational message to the client.
func Logf(format string, args ...interface{}) {
	Loglf("info", format, args...)
}

// Notice prints a bordered table with a header and a handful of lines
// underneath — used for the inspect command's summary.
func Notice(header string, lines []string) {
	if settings.json {
		Logf("notice: %s", header)
		for _, line := range lines {
			Logf("notice: %s", line)
		}
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoFormatHeaders(false)
	table.SetColWidth(60)
	table.SetHeader([]string{header})
	for _, line := range lines {
		table.Append([]string{line})
	}
	table.Render()
}

// Warnf sends a formatted non-critical warning.
func Warnf(format string, args ...interface{}) {
	Loglf("warning", format, args...)
}

// Debugf sends a formatted message shown only in verbose mode.
func Debugf(format string, args ...interface{}) {
	Loglf("debug", format, args...)
}

// Loglf logs a formatted message at the given level.
func Loglf(level string, format string, args ...interface{}) {
	logl(level, fmt.Sprintf(format, args...))
}

func logl(level string, msg string) {
	if settings.json {
		send("log", jsonMessage{"message": msg, "level": level})
		return
	}

	switch level {
	case "info":
		if !settings.quiet {
			log.Println(msg)
		}
	case "debug":
		if !settings.quiet && settings.verbose {
			log.Println(msg)
		}
	default:
		log.Printf("%s: %s\n", level, msg)
	}
}

// Dief prints a formatted fatal error and exits non-zero.
func Dief(format string, args ...interface{}) {
	EndProgress()
	msg := fmt.Sprintf(format, args...)
	if settings.json {
		send("error", jsonMessage{"message": msg})
	} else {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), msg)
	}
	os.Exit(1)
}

// send emits one newline-delimited JSON event; used only in JSON mode.
func send(msgType string, obj jsonMessage) {
	obj["type"] = msgType
	obj["time"] = time.Now().UTC().Unix()
	encoded, err := json.Marshal(obj)
	if err != nil {
		log.Println("comm: failed to encode json message:", err)
		return
	}
	fmt.Println(string(encoded))
}

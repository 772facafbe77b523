package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rombp/rombp/comm"
	"github.com/rombp/rombp/internal/config"
	"github.com/rombp/rombp/internal/inspect"
	"github.com/rombp/rombp/internal/patch"
	"github.com/rombp/rombp/internal/status"
)

var (
	version = "head"
	app     = kingpin.New("rombp", "Applies IPS and BPS patches to ROM-style binaries")

	sourcePath = app.Flag("source", "Path to the source ROM").Short('i').String()
	patchPath  = app.Flag("patch", "Path to the IPS or BPS patch file").Short('p').String()
	outputPath = app.Flag("output", "Path to write the patched ROM to").Short('o').String()
	configPath = app.Flag("config", "Path to an optional rombp.toml").Short('c').String()
	infoMode   = app.Flag("info", "Identify the patch file and print its header, without applying it").Bool()
	noProgress = app.Flag("no-progress", "Don't show the progress bar").Bool()
	verbose    = app.Flag("verbose", "Show debug output").Short('v').Bool()
	jsonOutput = app.Flag("json", "Emit machine-readable JSON-lines output instead of a terminal UI").Short('j').Bool()
)

// pollInterval is the cadence at which main polls the shared progress
// record while the worker goroutine runs.
const pollInterval = 16 * time.Millisecond

func main() {
	if len(os.Args) == 1 {
		launchUI()
		return
	}

	app.HelpFlag.Short('h')
	app.Version(version)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Config plumbing never aborts a run that doesn't need the
		// missing/malformed fields; just surface it and fall back to
		// built-in defaults.
		fmt.Fprintln(os.Stderr, "rombp: warning:", err)
	}

	opts := comm.Options{
		NoProgress: *noProgress || cfg.NoProgress,
		Verbose:    *verbose || cfg.Verbose,
		JSON:       *jsonOutput,
	}
	comm.Configure(opts)
	if err := comm.SetTheme(cfg.Theme); err != nil {
		fmt.Fprintln(os.Stderr, "rombp: warning:", err)
	}

	if *infoMode {
		runInfo(*patchPath)
		return
	}

	if *sourcePath == "" || *patchPath == "" || *outputPath == "" {
		app.Usage(os.Args[1:])
		os.Exit(1)
	}

	runApply(*sourcePath, *patchPath, *outputPath)
}

func runInfo(path string) {
	if path == "" {
		comm.Dief("-info requires -p PATCH")
	}

	report, err := inspect.Run(path)
	if err != nil {
		comm.Dief("%v", err)
	}

	lines := []string{fmt.Sprintf("kind: %s", report.Kind)}
	if report.Kind == patch.BPS {
		lines = append(lines,
			fmt.Sprintf("source size: %s", humanize.IBytes(report.BPSSourceSize)),
			fmt.Sprintf("target size: %s", humanize.IBytes(report.BPSTargetSize)),
			fmt.Sprintf("metadata length: %d bytes", report.BPSMetaLength),
		)
	}
	comm.Notice(fmt.Sprintf("%s (%s)", path, humanize.IBytes(uint64(report.PatchFileBytes))), lines)

	if report.Kind == patch.Unknown {
		os.Exit(1)
	}
}

func runApply(sourcePath, patchPath, outputPath string) {
	runID := uuid.New().String()
	comm.Debugf("run %s: source=%s patch=%s output=%s", runID, sourcePath, patchPath, outputPath)

	var shared status.Shared
	done := make(chan error, 1)
	go func() {
		done <- patch.Apply(context.Background(), patch.Command{
			SourcePath: sourcePath,
			PatchPath:  patchPath,
			OutputPath: outputPath,
		}, &shared)
	}()

	comm.Opf("applying %s to %s", patchPath, sourcePath)
	comm.StartProgress(progressEstimate(patchPath))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var finalErr error
pollLoop:
	for {
		select {
		case finalErr = <-done:
			break pollLoop
		case <-ticker.C:
			rec := shared.Snapshot()
			comm.SetHunkCount(rec.HunkCount)
		}
	}

	comm.EndProgress()

	if finalErr != nil {
		comm.Debugf("run %s: failed: %v", runID, finalErr)
		fmt.Fprintln(os.Stderr, color.RedString("patch failed:"), finalErr)
		os.Exit(1)
	}

	comm.Statf("%s written", color.GreenString(outputPath))
	comm.Debugf("run %s: completed", runID)
}

// progressEstimate guesses a unit count for the progress bar from the
// patch file's size on disk. It has no bearing on correctness — only on
// how quickly the bar appears to move — since the true hunk/action
// count isn't known without a full decode pass.
func progressEstimate(patchPath string) int64 {
	info, err := os.Stat(patchPath)
	if err != nil {
		return 0
	}
	return info.Size()
}

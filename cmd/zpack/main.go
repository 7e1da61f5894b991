// Command zpack creates, inspects and extracts zpack archives.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/meigma/zpack"
	"github.com/meigma/zpack/internal/config"
	"github.com/meigma/zpack/internal/metrics"
	"github.com/meigma/zpack/ops"
)

const usageText = `Usage: zpack <command> [switches] <archive> [files...]

Commands:
  c    create an archive from files and directories
  a    add files to an archive
  e    extract files without their directories
  x    extract files with full paths
  l    list the contents of an archive
  d    delete files or directories from an archive
  m    move files: zpack m <archive> <old> <new> [<old> <new>...]
  t    test the integrity of an archive

Switches:
`

// errUsage marks command line mistakes.
var errUsage = errors.New("invalid usage")

type command struct {
	name string
	// minArgs counts the positional arguments after the archive.
	minArgs int
	run     func(ctx context.Context, env *env) error
}

var commands = map[string]command{
	"c": {name: "create", minArgs: 1, run: runCreate},
	"a": {name: "add", minArgs: 1, run: runAdd},
	"e": {name: "extract", run: runExtract},
	"x": {name: "extract", run: runExtractFull},
	"l": {name: "list", run: runList},
	"d": {name: "delete", minArgs: 1, run: runDelete},
	"m": {name: "move", minArgs: 2, run: runMove},
	"t": {name: "test", run: runTest},
}

// env is what a command runs with.
type env struct {
	archive string
	args    []string
	opts    []ops.Option
	stdout  io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	var o options
	fs := newFlagSet(&o)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fmt.Fprint(stderr, fs.FlagUsages())
	}
	if err := fs.Parse(argv); err != nil {
		fmt.Fprintf(stderr, "zpack: %v\n", err)
		fs.Usage()
		return 1
	}
	if o.help {
		fs.Usage()
		return 0
	}

	pos := fs.Args()
	if len(pos) < 2 {
		fs.Usage()
		return 1
	}
	cmd, ok := commands[pos[0]]
	if !ok {
		fmt.Fprintf(stderr, "zpack: unknown command %q\n", pos[0])
		fs.Usage()
		return 1
	}
	archive, args := pos[1], pos[2:]
	if len(args) < cmd.minArgs {
		fmt.Fprintf(stderr, "zpack: %s: %v: missing arguments\n", cmd.name, errUsage)
		fs.Usage()
		return 1
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	defaults, err := config.Load(o.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "zpack: %v\n", err)
		return 1
	}
	if fs.Changed("method") {
		defaults.Compress = o.method.Value()
	}
	if fs.Changed("output") {
		defaults.Output = o.output
	}
	defaults.Exclude = append(defaults.Exclude, o.exclude...)

	var m *metrics.Metrics
	if o.metricsFile != "" {
		m = metrics.New()
	}

	e := &env{
		archive: archive,
		args:    args,
		stdout:  stdout,
		opts: []ops.Option{
			ops.WithLogger(logger),
			ops.WithCompression(defaults.Compress),
			ops.WithExclude(defaults.Exclude...),
			ops.WithOutput(defaults.Output),
			ops.WithUnsafe(o.unsafe),
			ops.WithWorkers(o.workers),
			ops.WithProgress(func(ev ops.ProgressEvent) {
				if ev.Path != "" {
					logger.Debug(ev.Stage.String(), "file", ev.Path, "done", ev.FilesDone, "total", ev.FilesTotal)
				}
			}),
		},
	}
	if m != nil {
		e.opts = append(e.opts, ops.WithRecorder(m))
	}

	err = cmd.run(ctx, e)
	if err != nil {
		m.OpFailed(cmd.name)
		fmt.Fprintf(stderr, "zpack: %s %s: %v (%s error)\n", cmd.name, archive, err, zpack.KindOf(err))
	}
	if werr := m.WriteTextfile(o.metricsFile); werr != nil {
		fmt.Fprintf(stderr, "zpack: write metrics: %v\n", werr)
		return 1
	}
	if err != nil {
		return 1
	}
	return 0
}

package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, s := newRootCommand(stdout)

	if err := root.Parse(args,
		ff.WithEnvVarPrefix("YEN_LENS"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(parseTOML),
		ff.WithConfigIgnoreUndefinedFlags(),
	); err != nil {
		selected := root.GetSelected()
		if selected == nil {
			selected = root
		}
		fmt.Fprintf(stderr, "%s\n", ffhelp.Command(selected))
		if errors.Is(err, ff.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(stderr, *s.debug))

	if err := root.Run(ctx); err != nil {
		if errors.Is(err, errNoCommand) {
			fmt.Fprintf(stderr, "%s\n", ffhelp.Command(root))
			return 1
		}
		slog.Error("Command failed", "command", root.GetSelected().Name, "error", err)
		return 1
	}
	return 0
}

var errNoCommand = errors.New("no command given")

func newRootCommand(stdout io.Writer) (*ff.Command, *settings) {
	rootFlags := ff.NewFlagSet("yen-lens")
	s := registerSettings(rootFlags)
	rootFlags.BoolLong("version", "Show version information")

	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	sv := registerServeSettings(serveFlags)

	captureFlags := ff.NewFlagSet("capture").SetParent(rootFlags)
	cs := registerCameraSettings(captureFlags)

	convertFlags := ff.NewFlagSet("convert").SetParent(rootFlags)
	scanFlags := ff.NewFlagSet("scan").SetParent(rootFlags)
	historyFlags := ff.NewFlagSet("history").SetParent(rootFlags)

	rich := isTerminal(stdout)

	root := &ff.Command{
		Name:      "yen-lens",
		Usage:     "yen-lens [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "Convert Yen prices to Euros and translate Japanese text in photos",
		Flags:     rootFlags,
		Exec: func(ctx context.Context, args []string) error {
			return errNoCommand
		},
		Subcommands: []*ff.Command{
			{
				Name:      "serve",
				Usage:     "yen-lens serve [FLAGS]",
				ShortHelp: "Run the web app, and optionally the camera and Telegram bot",
				Flags:     serveFlags,
				Exec: func(ctx context.Context, args []string) error {
					return runServe(ctx, s, sv)
				},
			},
			{
				Name:      "convert",
				Usage:     "yen-lens convert [FLAGS] AMOUNT",
				ShortHelp: "Convert a Yen amount to Euros",
				Flags:     convertFlags,
				Exec: func(ctx context.Context, args []string) error {
					if len(args) != 1 {
						return fmt.Errorf("convert takes exactly one AMOUNT")
					}
					return runConvert(ctx, s, args[0], stdout, rich)
				},
			},
			{
				Name:      "scan",
				Usage:     "yen-lens scan [FLAGS] FILE",
				ShortHelp: "Translate a photo and convert the prices in it",
				Flags:     scanFlags,
				Exec: func(ctx context.Context, args []string) error {
					if len(args) != 1 {
						return fmt.Errorf("scan takes exactly one FILE")
					}
					return runScan(ctx, s, args[0], stdout, rich)
				},
			},
			{
				Name:      "capture",
				Usage:     "yen-lens capture [FLAGS]",
				ShortHelp: "Take one photo with the local camera and analyze it",
				Flags:     captureFlags,
				Exec: func(ctx context.Context, args []string) error {
					return runCapture(ctx, s, cs, stdout, rich)
				},
			},
			{
				Name:      "history",
				Usage:     "yen-lens history --history-db FILE",
				ShortHelp: "List recorded scans",
				Flags:     historyFlags,
				Exec: func(ctx context.Context, args []string) error {
					return runHistory(s, stdout, rich)
				},
			},
		},
	}
	return root, s
}

// newLogger writes text to terminals and JSON everywhere else
func newLogger(w io.Writer, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

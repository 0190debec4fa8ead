package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nixxel-company-limited/todo-receipts/config"
	"github.com/nixxel-company-limited/todo-receipts/logger"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Exit codes
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// PrintTimeout bounds a single print job started from the command line.
const PrintTimeout = 60 * time.Second

// errUsage marks errors that should be answered with the usage text.
var errUsage = errors.New("usage")

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// App runs subcommands against one configuration directory.
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	// ConfigDir overrides ~/.todo-receipts
	ConfigDir string

	// SkipLoggerInit leaves the process-wide logger untouched
	SkipLoggerInit bool

	manager *config.Manager
	cfg     *config.Config
}

// Run executes args with the process streams.
func Run(args []string) int {
	app := &App{Stdout: os.Stdout, Stderr: os.Stderr}
	return app.Run(args)
}

type command struct {
	name    string
	summary string
	run     func(a *App, ctx context.Context, args []string) error
}

var commands = []command{
	{"print", "Print a receipt of the to-do list", (*App).doPrint},
	{"add", "Add an item", (*App).doAdd},
	{"ls", "List items", (*App).doList},
	{"done", "Mark an item as completed", (*App).doDone},
	{"rm", "Remove an item", (*App).doRemove},
	{"relay", "Forward raw jobs received over TCP to a printer", (*App).doRelay},
	{"poll", "Print jobs queued on the cloud dashboard", (*App).doPoll},
	{"detect", "List attached USB devices and CUPS printers", (*App).doDetect},
	{"config", "Show or change the configuration", (*App).doConfig},
}

// Run dispatches a subcommand and returns an exit code (0 ok, 1 error, 2 usage).
func (a *App) Run(args []string) int {
	global := pflag.NewFlagSet("todo-receipts", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)
	configDir := global.String("config-dir", a.ConfigDir, "configuration directory")
	logLevel := global.String("log-level", "", "log level (debug, info, warn, error)")
	dev := global.Bool("dev", false, "development logging")
	showVersion := global.BoolP("version", "v", false, "print version")
	help := global.BoolP("help", "h", false, "show help")

	if err := global.Parse(args); err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n\n", err)
		a.printHelp(a.Stderr)
		return ExitUsage
	}
	if *showVersion {
		fmt.Fprintln(a.Stdout, "todo-receipts", config.Version)
		return ExitOK
	}

	rest := global.Args()
	if *help || len(rest) == 0 || rest[0] == "help" {
		a.printHelp(a.Stdout)
		if len(rest) == 0 && !*help {
			return ExitUsage
		}
		return ExitOK
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == rest[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(a.Stderr, "Error: unknown subcommand %q\n\n", rest[0])
		a.printHelp(a.Stderr)
		return ExitUsage
	}

	a.manager = config.NewManager(*configDir)
	cfg, err := a.manager.Load(func(err error) {
		fmt.Fprintf(a.Stderr, "Warning: %v\n", err)
	})
	if err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return ExitError
	}
	a.cfg = cfg

	if !a.SkipLoggerInit {
		level := cfg.LogLevel
		if *logLevel != "" {
			level = *logLevel
		}
		if err := logger.Init(level, *dev); err != nil {
			fmt.Fprintf(a.Stderr, "Error: %v\n", err)
			return ExitUsage
		}
		defer logger.Sync()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(a, ctx, rest[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return ExitUsage
		}
		logger.Debug("Command failed", zap.String("command", cmd.name), zap.Error(err))
		return ExitError
	}
	return ExitOK
}

func (a *App) printHelp(w io.Writer) {
	fmt.Fprintf(w, "todo-receipts %s - print thermal receipt to-do lists\n\n", config.Version)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  todo-receipts [--config-dir dir] [--log-level level] <subcommand> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Subcommands:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	tw.Flush()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Printer interfaces:")
	fmt.Fprintln(w, "  usb               USB printer 04b8:0202")
	fmt.Fprintln(w, "  usb:VID:PID       USB printer by hexadecimal id")
	fmt.Fprintln(w, "  tcp://host[:port] network printer, port 9100 by default")
	fmt.Fprintln(w, "  NAME              CUPS destination")
}

// newFlagSet creates a subcommand flag set that reports errors as usage
// errors and prints its defaults to stderr on --help.
func (a *App) newFlagSet(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.Stderr, "Usage: todo-receipts %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageErr("%v", err)
	}
	return nil
}

func parseID(cmd string, args []string) (int64, error) {
	if len(args) != 1 {
		return 0, usageErr("%s takes exactly one item id", cmd)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return 0, usageErr("%s: not an item id: %s", cmd, args[0])
	}
	return id, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

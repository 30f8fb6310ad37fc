package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dev-cetera/df-wasm-interop/host"
	"github.com/dev-cetera/df-wasm-interop/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Options is the parsed command line.
type Options struct {
	Config  config.Config
	Preload string
	Path    string
	Func    string
	Args    []string
}

// Parse processes command-line arguments on top of env-derived defaults. It
// returns the options, a boolean indicating if the program should exit
// cleanly, or an ExitError.
func Parse(args []string, output io.Writer, defaults config.Config) (*Options, bool, error) {
	flagSet := flag.NewFlagSet("wasminterop", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
wasminterop - load a wasm-bindgen style module and call its exports.

Usage:
  wasminterop [options] MODULE_PATH [FUNC [ARGS...]]

Arguments:
  MODULE_PATH
    Path of the descriptor (glue .js or manifest), resolved against -base.
  FUNC ARGS
    Optional export to call with numeric arguments.

Options:
`)
		flagSet.PrintDefaults()
	}

	cfg := defaults
	flagSet.StringVar(&cfg.BaseURL, "base", cfg.BaseURL, "Base URL module paths resolve against.")
	flagSet.StringVar(&cfg.Root, "root", cfg.Root, "Directory that file:// URLs are read from.")
	flagSet.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "Timeout for each HTTP fetch. 0 disables it.")
	flagSet.BoolVar(&cfg.StrictExports, "strict", cfg.StrictExports, "Fail when the glue names an export the artifact lacks.")
	flagSet.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log output format. Options: 'text' or 'json'.")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	preload := flagSet.String("preload", "", "YAML file listing modules to load before MODULE_PATH.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() == 0 && *preload == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	opts := &Options{Config: cfg, Preload: *preload}
	rest := flagSet.Args()
	if len(rest) > 0 {
		opts.Path = rest[0]
	}
	if len(rest) > 1 {
		opts.Func = rest[1]
		opts.Args = rest[2:]
	}
	return opts, false, nil
}

// Run executes the command and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	defaults, err := config.ParseEnv()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	opts, exit, err := Parse(args, stderr, defaults)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(stderr, exitErr.Message)
			return exitErr.Code
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	if exit {
		return 0
	}

	if err := execute(ctx, opts, stdout, stderr); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, opts *Options, stdout, stderr io.Writer) error {
	logger, err := opts.Config.NewLogger(stderr)
	if err != nil {
		return err
	}
	h, err := host.New(ctx, opts.Config, logger)
	if err != nil {
		return err
	}
	defer h.Close(ctx)

	if opts.Preload != "" {
		p, err := config.LoadPreload(opts.Preload)
		if err != nil {
			return err
		}
		if err := h.Loader().LoadAll(ctx, p.Modules...); err != nil {
			return err
		}
	}
	if opts.Path == "" {
		for _, path := range h.Loader().Loaded() {
			fmt.Fprintln(stdout, path)
		}
		return nil
	}

	if err := h.LoadModule(ctx, opts.Path); err != nil {
		return err
	}
	mod, _ := h.GetModule(opts.Path)
	if opts.Func == "" {
		fmt.Fprintf(stdout, "%s: %s\n", opts.Path, strings.Join(mod.Exports(), " "))
		return nil
	}

	results, err := mod.CallText(ctx, opts.Func, opts.Args...)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, strings.Join(results, " "))
	return nil
}

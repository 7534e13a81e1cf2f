// crate builds a minimal container filesystem from a FreeBSD base system and a
// declarative spec file.
//
//	crate create --spec FILE [--output FILE] [--keep-jail]
//	crate validate --spec FILE
//
// Settings that are not part of a spec (data directory, base archive, unpack mode,
// output format, logging, telemetry) come from the environment or a .env file.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kernel/crate/cmd/crate/config"
	"github.com/kernel/crate/lib/crate"
	"github.com/kernel/crate/lib/spec"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage error")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return fmt.Errorf("%w: missing command", errUsage)
	}

	switch args[0] {
	case "create":
		return runCreate(args[1:], stdout)
	case "validate":
		return runValidate(args[1:], stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	}
	printUsage(os.Stderr)
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage:
  crate create --spec FILE [--output FILE] [--keep-jail]
  crate validate --spec FILE
`)
}

func parseFlags(flagSet *pflag.FlagSet, args []string, specPath *string) error {
	flagSet.StringVarP(specPath, "spec", "s", "", "path to the crate spec file")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *specPath == "" {
		return fmt.Errorf("%w: --spec is required", errUsage)
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", errUsage, flagSet.Arg(0))
	}
	return nil
}

func runCreate(args []string, stdout io.Writer) error {
	var specPath, output string
	var keepJail bool

	flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
	flagSet.StringVarP(&output, "output", "o", "", "crate file to write (default: <name>.crate)")
	flagSet.BoolVar(&keepJail, "keep-jail", false, "leave the jail directory in place")
	if err := parseFlags(flagSet, args, &specPath); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	s, err := spec.Load(specPath)
	if err != nil {
		return &crate.Error{Phase: crate.PhaseCreate, Err: err}
	}

	app, cleanup, err := initializeApp()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	res, err := app.Builder.Create(app.Ctx, crate.Request{
		Spec:     s,
		Output:   output,
		KeepJail: keepJail,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, res.Output)
	return nil
}

func runValidate(args []string, stdout io.Writer) error {
	var specPath string

	flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	if err := parseFlags(flagSet, args, &specPath); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s, err := spec.Load(specPath)
	if err != nil {
		return err
	}
	user, err := spec.CurrentUser()
	if err != nil {
		return err
	}
	s = s.Preprocess(user)
	if err := s.ValidateWith(cfg.Rules()); err != nil {
		return err
	}

	name, err := crate.GuessName(s)
	if err != nil {
		name = "(none)"
	}
	fmt.Fprintf(stdout, "%s: valid, crate name %s\n", specPath, name)
	if cmd := s.RunCommand(); cmd != "" {
		fmt.Fprintf(stdout, "run: %s\n", cmd)
	}
	return nil
}

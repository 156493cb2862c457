package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/havogt/serialbox2/internal/archive"
	"github.com/havogt/serialbox2/internal/model"
	"github.com/havogt/serialbox2/internal/storageview"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// fieldFlags are shared by the commands addressing one occurrence
type fieldFlags struct {
	dir   string
	field string
	id    int
}

func (f *fieldFlags) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&f.dir, "dir", "d", "", "archive directory")
	flagSet.StringVarP(&f.field, "field", "f", "", "field name")
	flagSet.IntVar(&f.id, "id", 0, "occurrence id")
}

func (f *fieldFlags) fieldID() model.FieldID {
	return model.FieldID{Name: f.field, ID: f.id}
}

func (f *fieldFlags) check(needField bool) error {
	if f.dir == "" {
		return fmt.Errorf("--dir is required")
	}
	if needField && f.field == "" {
		return fmt.Errorf("--field is required")
	}
	return nil
}

func newFlagSet(env *environment, name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(env.stderr)
	return flagSet
}

func parse(flagSet *pflag.FlagSet, args []string) (bool, error) {
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return false, nil
		}
		return false, &exitError{code: 2}
	}
	return true, nil
}

// closeArchive closes a and reports the close error unless err is already set
func closeArchive(a *archive.Archive, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func runPut(ctx context.Context, env *environment, args []string) (err error) {
	var flags fieldFlags
	var appendMode bool

	flagSet := newFlagSet(env, "put")
	flags.addFlags(flagSet)
	flagSet.BoolVar(&appendMode, "append", false, "open an existing archive instead of starting a new one")
	if ok, err := parse(flagSet, args); !ok {
		return err
	}
	if err := flags.check(true); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("put takes exactly one input file (use - for stdin)")
	}

	data, err := readInput(env, flagSet.Arg(0))
	if err != nil {
		return err
	}

	mode := model.OpenModeWrite
	if appendMode {
		mode = model.OpenModeAppend
	}
	a, err := archive.Open(flags.dir, mode, env.archive, env.logger)
	if err != nil {
		return err
	}
	defer closeArchive(a, &err)

	if err := a.Write(flags.fieldID(), storageview.Bytes(data)); err != nil {
		return err
	}

	row, _ := a.FieldOffsets(flags.field)
	fmt.Fprintf(env.stdout, "%s: %d bytes, %d occurrences\n", flags.fieldID(), len(data), len(row))
	return nil
}

func readInput(env *environment, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(env.stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func runGet(ctx context.Context, env *environment, args []string) (err error) {
	var flags fieldFlags
	var out string

	flagSet := newFlagSet(env, "get")
	flags.addFlags(flagSet)
	flagSet.StringVarP(&out, "out", "o", "", "write the occurrence to this file instead of stdout")
	if ok, err := parse(flagSet, args); !ok {
		return err
	}
	if err := flags.check(true); err != nil {
		return err
	}

	a, err := archive.Open(flags.dir, model.OpenModeRead, env.archive, env.logger)
	if err != nil {
		return err
	}
	defer closeArchive(a, &err)

	data, err := a.ReadRaw(flags.fieldID())
	if err != nil {
		return err
	}

	if out == "" {
		_, err = env.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func runInspect(ctx context.Context, env *environment, args []string) (err error) {
	var flags fieldFlags

	flagSet := newFlagSet(env, "inspect")
	flagSet.StringVarP(&flags.dir, "dir", "d", "", "archive directory")
	if ok, err := parse(flagSet, args); !ok {
		return err
	}
	if err := flags.check(false); err != nil {
		return err
	}

	a, err := archive.Open(flags.dir, model.OpenModeRead, env.archive, env.logger)
	if err != nil {
		return err
	}
	defer closeArchive(a, &err)

	fmt.Fprint(env.stdout, a.String())
	return nil
}

func runVerify(ctx context.Context, env *environment, args []string) (err error) {
	var flags fieldFlags
	var parallel int

	flagSet := newFlagSet(env, "verify")
	flagSet.StringVarP(&flags.dir, "dir", "d", "", "archive directory")
	flagSet.IntVarP(&parallel, "parallel", "p", 0, "fields verified concurrently (0 = GOMAXPROCS)")
	if ok, err := parse(flagSet, args); !ok {
		return err
	}
	if err := flags.check(false); err != nil {
		return err
	}

	a, err := archive.Open(flags.dir, model.OpenModeRead, env.archive, env.logger)
	if err != nil {
		return err
	}
	defer closeArchive(a, &err)

	report, err := a.Verify(ctx, parallel)
	if err != nil {
		return err
	}

	for _, failure := range report.Failures {
		fmt.Fprintf(env.stdout, "FAIL %s: %v\n", failure.FieldID, failure.Err)
	}
	fmt.Fprintf(env.stdout, "%d fields, %d occurrences, %d bytes verified, %d failures\n",
		report.Fields, report.Occurrences, report.Bytes, len(report.Failures))

	if !report.OK() {
		env.logger.Warn("Archive verification failed",
			zap.String("directory", flags.dir), zap.Int("failures", len(report.Failures)))
		return &exitError{code: 1}
	}
	return nil
}

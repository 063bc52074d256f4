// svm - assembles and runs stack machine programs
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/stackvm/manifest"
	"github.com/chazu/stackvm/trace"
	"github.com/chazu/stackvm/vm"
)

var log = commonlog.GetLogger("svm")

type options struct {
	program     string
	disassemble bool
	tracePath   string
	stackLimit  int
	maxSteps    int
	chars       bool
	noManifest  bool
}

func main() {
	disassemble := flag.Bool("d", false, "Disassemble instead of executing")
	tracePath := flag.String("trace", "", "Record a CBOR execution trace to this file")
	stackLimit := flag.Int("stack", 0, "Operand stack depth limit (0 = default)")
	maxSteps := flag.Int("steps", 0, "Instruction budget (0 = unlimited)")
	chars := flag.Bool("chars", false, "Render output values as characters")
	noManifest := flag.Bool("no-manifest", false, "Ignore any stackvm.toml near the program")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: svm [options] [program.svm]\n\n")
		fmt.Fprintf(os.Stderr, "Assembles the program and executes it, printing each PRINT value on its own line.\n")
		fmt.Fprintf(os.Stderr, "Without a program argument, the entry from the nearest stackvm.toml is run.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  svm examples/fib.svm           # Run the Fibonacci example\n")
		fmt.Fprintf(os.Stderr, "  svm -d examples/fib.svm        # Show its disassembly\n")
		fmt.Fprintf(os.Stderr, "  svm -chars examples/hello.svm  # Render output as text\n")
		fmt.Fprintf(os.Stderr, "  svm -trace run.cbor prog.svm   # Record an execution trace\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	opts := options{
		program:     flag.Arg(0),
		disassemble: *disassemble,
		tracePath:   *tracePath,
		stackLimit:  *stackLimit,
		maxSteps:    *maxSteps,
		chars:       *chars,
		noManifest:  *noManifest,
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if err := applyManifest(&opts); err != nil {
		return err
	}
	if opts.program == "" {
		return fmt.Errorf("no program given and no stackvm.toml entry found")
	}

	source, err := os.ReadFile(opts.program)
	if err != nil {
		return err
	}

	prog, err := vm.Assemble(string(source))
	if err != nil {
		return fmt.Errorf("%s: %w", opts.program, err)
	}
	log.Infof("assembled %s: %d instructions", opts.program, len(prog))

	if opts.disassemble {
		fmt.Print(vm.Disassemble(prog))
		return nil
	}

	m := vm.NewMachine()
	if opts.stackLimit > 0 {
		m.StackLimit = opts.stackLimit
	}
	if opts.maxSteps > 0 {
		m.MaxSteps = opts.maxSteps
	}

	var rec *trace.Recorder
	if opts.tracePath != "" {
		f, err := os.Create(opts.tracePath)
		if err != nil {
			return err
		}
		defer f.Close()
		rec, err = trace.NewRecorder(f, len(prog))
		if err != nil {
			return err
		}
		m.Tracer = rec
		log.Infof("tracing session %s to %s", rec.Session(), opts.tracePath)
	}

	res, execErr := m.Execute(prog)

	printOutput(m.Output(), opts.chars)

	if rec != nil {
		if err := rec.Err(); err != nil {
			return err
		}
	}
	if execErr != nil {
		return execErr
	}

	log.Infof("halted after %d steps", m.Steps())
	if !res.Empty && !opts.chars {
		fmt.Printf("=> %d\n", res.Value)
	}
	return nil
}

// applyManifest fills unset options from the nearest stackvm.toml. Flags
// always win over manifest values.
func applyManifest(opts *options) error {
	if opts.noManifest {
		return nil
	}

	start := "."
	if opts.program != "" {
		start = filepath.Dir(opts.program)
	}
	mf, err := manifest.FindAndLoad(start)
	if err != nil || mf == nil {
		return err
	}
	log.Infof("using manifest in %s", mf.Dir)

	if opts.program == "" {
		opts.program = mf.EntryPath()
	}
	if opts.stackLimit == 0 {
		opts.stackLimit = mf.Machine.StackLimit
	}
	if opts.maxSteps == 0 {
		opts.maxSteps = mf.Machine.MaxSteps
	}
	if opts.tracePath == "" {
		opts.tracePath = mf.TracePath()
	}
	return nil
}

func printOutput(values []int64, chars bool) {
	if chars {
		var sb strings.Builder
		for _, v := range values {
			sb.WriteRune(rune(v))
		}
		fmt.Print(sb.String())
		return
	}
	for _, v := range values {
		fmt.Println(v)
	}
}

// Package main provides the entry point for the kiln compiler.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"

	"github.com/kiln-lang/kiln/internal/artifact"
	"github.com/kiln-lang/kiln/internal/codegen"
	"github.com/kiln-lang/kiln/internal/codegen/x64"
	"github.com/kiln-lang/kiln/internal/config"
	"github.com/kiln-lang/kiln/internal/debug"
	"github.com/kiln-lang/kiln/internal/isa"
	"github.com/kiln-lang/kiln/internal/module"
	"github.com/kiln-lang/kiln/internal/obj"

	_ "github.com/tliron/commonlog/simple"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var log = commonlog.GetLogger("kiln.cmd")

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		configDir   = flag.String("config-dir", ".", "directory containing kiln.toml")
		debugInfo   = flag.Bool("debug-info", false, "emit frame layouts and a .debug_frame section")
		workers     = flag.Int("workers", 0, "number of parallel compile workers (0 = GOMAXPROCS)")
		watch       = flag.Bool("watch", false, "recompile whenever the input changes")
		verbose     = flag.Int("v", 0, "log verbosity")
	)

	flag.Parse()
	commonlog.Configure(*verbose, nil)

	if *showVersion {
		fmt.Printf("kilnc v%s (%s)\n", version, commit)
		return
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: kilnc [options] <input.kilnsrc>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	input := args[0]

	cfg, err := config.Load(*configDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fatalf("config: %v", err)
		}
		cfg = config.Default(*configDir)
	}
	if *debugInfo {
		cfg.Compile.DebugInfo = true
	}
	if *workers != 0 {
		cfg.Compile.Workers = *workers
	}

	if *watch {
		if err := watchAndCompile(input, cfg); err != nil {
			fatalf("watch: %v", err)
		}
		return
	}

	if err := compileOnce(input, cfg); err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	log.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "kilnc: "+format+"\n", args...)
	os.Exit(1)
}

// compileOnce drives a full compile: source artifact in, object file and
// compiled artifact out.
func compileOnce(input string, cfg *config.Config) error {
	start := time.Now()

	src, err := artifact.ReadSource(input)
	if err != nil {
		return err
	}

	target, err := isa.NewTarget(isa.Arch(cfg.Target.Arch))
	if err != nil {
		return err
	}
	backend, err := x64.New(target)
	if err != nil {
		return err
	}

	nw := cfg.Compile.Workers
	if nw <= 0 {
		nw = runtime.GOMAXPROCS(0)
	}
	out, err := codegen.CompileModule(&src.Module, src.Bodies, backend, codegen.Options{
		DebugInfo: cfg.Compile.DebugInfo,
		Workers:   nw,
	})
	if err != nil {
		return err
	}

	compiled := &artifact.Compiled{
		Arch:         target.Arch,
		Code:         out.Code,
		Relocs:       out.Relocs,
		AddressMaps:  out.AddressMaps,
		FrameLayouts: out.FrameLayouts,
	}

	var frameData []byte
	if cfg.Compile.DebugInfo {
		table := debug.NewFrameTable(target)
		for i, layout := range out.FrameLayouts {
			if err := table.AddFunc(layout, uint32(len(out.Code[i]))); err != nil {
				return fmt.Errorf("function %d: %w", i, err)
			}
		}
		frameData, compiled.FrameRelocs, err = table.Encode()
		if err != nil {
			return err
		}
		compiled.FrameTable = frameData
	}

	text, syms := layoutText(&src.Module, out.Code)
	img := obj.Image{Text: text, DebugFrame: frameData, Symbols: syms}
	if err := obj.WriteELF(cfg.ObjectPath(), img); err != nil {
		return err
	}
	if err := artifact.WriteCompiled(cfg.ArtifactPath(), compiled); err != nil {
		return err
	}

	log.Infof("compiled %d functions in %s", len(out.Code), time.Since(start).Round(time.Millisecond))

	return nil
}

// layoutText concatenates function bodies into one text section, recording
// a symbol per function at its placed offset.
func layoutText(m *module.Module, code [][]byte) ([]byte, []obj.Symbol) {
	var n int
	for _, c := range code {
		n += len(c)
	}
	text := make([]byte, 0, n)
	syms := make([]obj.Symbol, 0, len(code))
	for i, c := range code {
		syms = append(syms, obj.Symbol{
			Name: m.FuncName(module.FuncIndex(i)),
			Off:  uint64(len(text)),
			Size: uint64(len(c)),
		})
		text = append(text, c...)
	}

	return text, syms
}

// watchAndCompile recompiles on every write to the input file, debouncing
// bursts of events from editors that write in several steps.
func watchAndCompile(input string, cfg *config.Config) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory, not the file: editors that replace-on-save
	// would otherwise drop the watch.
	if err := w.Add(filepath.Dir(input)); err != nil {
		return err
	}

	if err := compileOnce(input, cfg); err != nil {
		log.Errorf("compile: %v", err)
	}

	deb := newDebouncer(100 * time.Millisecond)

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(input) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			deb.Hit()
		case <-deb.C:
			log.Infof("input changed, recompiling")
			if err := compileOnce(input, cfg); err != nil {
				log.Errorf("compile: %v", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warningf("watcher: %v", err)
		}
	}
}

// Command c8 runs CHIP-8 programs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nf/c8/vip"
)

func main() {
	log.SetPrefix("c8: ")
	log.SetFlags(0)

	var (
		backendFlag = flag.String("backend", "window", "display `backend` ("+strings.Join(backendNames(), ", ")+")")
		configFlag  = flag.String("config", "", "read settings from TOML `file`")
		restartFlag = flag.Bool("restart", false, "restart the program when it runs off its end")
		noGhostFlag = flag.Bool("noghost", false, "disable phosphor ghosting")
		themeFlag   = flag.String("theme", "", "colour `theme` ("+strings.Join(vip.ThemeNames(), ", ")+")")
		traceFlag   = flag.Bool("trace", false, "log recent instructions when the program halts")
		devFlag     = flag.Bool("dev", false, "enable developer mode (reload the program when it changes)")
		debugFlag   = flag.Bool("debug", false, "enable debugger (implies -dev)")
		shotFlag    = flag.String("shot", "", "write a screenshot to `file` on exit")
		statsFlag   = flag.Bool("statsview", false, "serve runtime statistics at http://"+statsAddr+statsPath)

		cpuProfileFlag = flag.String("cpu_profile", "", "write CPU profile to `file`")

		tick vip.TickRate = vip.DefaultTickRate
	)
	flag.Var(&tick, "tick", "instructions per second, or \"uncapped\"")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <program.ch8>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
	}

	cfg := vip.DefaultConfig()
	if *configFlag != "" {
		var err error
		if cfg, err = vip.LoadConfig(*configFlag); err != nil {
			log.Fatal(err)
		}
	}
	// Flags given on the command line override the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tick":
			cfg.TickRate = tick
		case "restart":
			cfg.RestartOnEnd = *restartFlag
		case "noghost":
			cfg.DisableGhosting = *noGhostFlag
		case "theme":
			cfg.Theme = *themeFlag
		case "trace":
			cfg.Trace = *traceFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	opts := options{
		backend: *backendFlag,
		dev:     *devFlag || *debugFlag,
		debug:   *debugFlag,
		shot:    *shotFlag,
	}

	if *statsFlag {
		launchStatsView(os.Stderr)
	}

	var cpuProfile io.Closer
	if prof := *cpuProfileFlag; prof != "" {
		f, err := os.Create(prof)
		if err != nil {
			log.Fatalf("creating CPU profile file: %v", err)
		}
		pprof.StartCPUProfile(f)
		cpuProfile = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, flag.Arg(0), cfg, opts)
	stop()

	if f := cpuProfile; f != nil {
		pprof.StopCPUProfile()
		f.Close()
	}

	if err != nil {
		log.Fatal(err)
	}
}

type options struct {
	backend string
	dev     bool
	debug   bool
	shot    string
}

// A backend displays frames from fb and feeds key events to r until the
// user quits, r stops or ctx is done. Backends run on the main goroutine.
type backend func(ctx context.Context, r *vip.Runner, fb *vip.FrameBuffer) error

var backends = map[string]backend{
	"window": runWindow,
	"ebiten": runEbiten,
	"term":   runTerm,
	"none":   runHeadless,
}

func backendNames() []string {
	var names []string
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func run(ctx context.Context, romFile string, cfg vip.Config, o options) error {
	b, ok := backends[o.backend]
	if !ok {
		return fmt.Errorf("unknown backend %q", o.backend)
	}
	if o.debug && o.backend == "term" {
		return errors.New("the debugger and the term backend cannot share the terminal")
	}
	rom, err := os.ReadFile(romFile)
	if err != nil {
		return err
	}

	var (
		fb    = vip.NewFrameBuffer()
		dbg   *debugger
		state vip.StateFunc
	)
	if o.debug {
		dbg = newDebugger(fb)
		state = dbg.StateFunc
	}
	r, err := vip.NewRunner(rom, fb, cfg, o.dev, state)
	if err != nil {
		return err
	}
	if dbg != nil {
		dbg.r = r
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(r.Run(ctx)) })
	if o.dev {
		g.Go(func() error { return ignoreCanceled(watchROM(ctx, romFile, r)) })
	}
	if dbg != nil {
		g.Go(func() error {
			defer cancel()
			return dbg.Run(ctx)
		})
	}

	err = b(ctx, r, fb)
	r.Halt()
	cancel()
	if werr := g.Wait(); err == nil {
		err = werr
	}

	if o.shot != "" {
		if serr := writeShot(fb, o.shot); err == nil {
			err = serr
		}
	}
	return err
}

func runHeadless(ctx context.Context, r *vip.Runner, fb *vip.FrameBuffer) error {
	select {
	case <-ctx.Done():
	case <-r.Done():
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// A command to run the devio proxy server
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sevlyar/go-daemon"

	"github.com/mridentity/ImDisk/devio"
)

// this is a wrapper to enable us to put the interesting stuff in a package
func main() {
	os.Exit(run())
}

func run() int {
	dll := flag.String("dll", "", "path;entry of a dynamically-loaded backing provider")
	drv := flag.Bool("drv", false, "use the kernel-driver transport (drv:<name> comm endpoints)")
	novhd := flag.Bool("novhd", false, "disable dynamic VHD autodetection")
	readOnly := flag.Bool("r", false, "open the image read-only")
	forceSync := flag.Bool("sync", false, "request force-unit-access/O_SYNC semantics from the backing provider")
	defaultsFile := flag.String("defaults", "", "optional YAML file supplying fallback argument values")
	daemonize := flag.Bool("daemonize", false, "detach and run as a background daemon")
	flag.Parse()
	_ = drv // consumed via the comm endpoint's drv: prefix, recorded here for --help visibility

	if *daemonize {
		ctx := &daemon.Context{}
		child, err := ctx.Reborn()
		if err != nil {
			fmt.Fprintf(os.Stderr, "devio: daemonize failed: %v\n", err)
			return 2
		}
		if child != nil {
			return 0
		}
		defer ctx.Release()
	}

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: devio [--dll=lib;entry] [--drv] [--novhd] [-r] <comm> <image> [size|partno] [offset] [align] [bufsize]")
		return -1
	}

	opts := devio.Options{
		NoVhd:     *novhd,
		ReadOnly:  *readOnly,
		ForceSync: *forceSync,
		Comm:      args[0],
		Image:     args[1],

		DefaultsFile: *defaultsFile,
	}
	if len(args) > 2 {
		opts.SizeOrPartNo = args[2]
	}
	if len(args) > 3 {
		opts.Offset = args[3]
	}
	if len(args) > 4 {
		opts.Align = args[4]
	}
	if len(args) > 5 {
		opts.BufSize = args[5]
	}
	if *dll != "" {
		opts.DllPath, opts.DllEntry = splitDllSpec(*dll)
	}

	logger := newLogger()
	sink := devio.NewSink(logger)
	defer devio.InstallFatalHandler(sink)()

	session, err := devio.Bootstrap(opts, sink)
	if err != nil {
		sink.Error("startup failed: %v", err)
		return 1
	}

	if err := session.Run(); err != nil {
		sink.Error("session terminated: %v", err)
		return 2
	}
	return 0
}

// newLogger routes diagnostics to stderr: plain lines when attached to a
// terminal (a human is already watching it scroll by in real time), and
// with log.LstdFlags timestamps when redirected to a file or pipe, where a
// timestamp is the only way to later correlate a line with when it happened.
func newLogger() *log.Logger {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return log.New(os.Stderr, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

func splitDllSpec(spec string) (path, entry string) {
	for i := len(spec) - 1; i >= 0; i-- {
		if spec[i] == ';' {
			return spec[:i], spec[i+1:]
		}
	}
	return spec, ""
}

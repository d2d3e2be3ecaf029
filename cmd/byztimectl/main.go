// byztimectl is a CLI for inspecting and driving a byztime shared-memory
// region.
//
// Usage:
//
//	byztimectl [flags] <region-file>
//
// Flags:
//
//	--config <path>     explicit config file (JSONC)
//	--drift-ppb <n>      override the consumer drift setting
//	--writer             open the region read-write (provider role)
//
// Commands (in REPL):
//
//	get                          Show current (min, est, max) offset
//	global                       Show current (min, est, max) global time
//	set <sec> <nsec> <err-sec>   Publish a new entry (writer only)
//	update-real                  Recompute real_offset (writer only)
//	raw                          Show the raw current entry (writer only)
//	slew <min> <max> [maxerr]    Switch to slew mode with the given ppb rates
//	step                         Switch to step mode
//	drift [ppb]                  Show or set the drift setting
//	watch [interval-ms]          Poll get_global_time until interrupted
//	config                       Show effective configuration
//	help                         Show this help
//	exit / quit / q              Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/akamai-contrib/libbyztime/pkg/byztime"
	"github.com/akamai-contrib/libbyztime/pkg/stamp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		driftPPB   int64
		writer     bool
	)

	flags := pflag.NewFlagSet("byztimectl", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "explicit config file (JSONC)")
	flags.Int64Var(&driftPPB, "drift-ppb", 0, "override the consumer drift setting, in parts per billion")
	flags.BoolVar(&writer, "writer", false, "open the region read-write (provider role)")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: byztimectl [flags] <region-file>\n\nFlags:\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}

	cfg, err := LoadConfig(workDir, configPath)
	if err != nil {
		return err
	}

	if flags.NArg() >= 1 {
		cfg.RegionPath = expandHome(flags.Arg(0))
	}

	if driftPPB != 0 {
		cfg.DriftPPB = driftPPB
	}

	clock := byztime.NewSystemClock()

	repl := &REPL{cfg: cfg, clock: clock}
	defer repl.closeContexts()

	if writer {
		provider, err := byztime.OpenProvider(cfg.RegionPath, clock)
		if err != nil {
			return fmt.Errorf("opening provider: %w", err)
		}

		repl.provider = provider
	}

	consumer, err := byztime.OpenConsumer(cfg.RegionPath, clock)
	if err != nil {
		if !errors.Is(err, byztime.ErrEraMismatch) && !errors.Is(err, byztime.ErrProtocol) {
			return fmt.Errorf("opening consumer: %w", err)
		}

		fmt.Fprintf(os.Stderr, "warning: consumer open failed: %v (read commands unavailable until fixed)\n", err)
	} else {
		consumer.SetDrift(cfg.DriftPPB)
		repl.consumer = consumer
	}

	return repl.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	cfg      Config
	clock    byztime.Clock
	provider *byztime.Provider
	consumer *byztime.Consumer
	liner    *liner.State
}

func (r *REPL) closeContexts() {
	if r.provider != nil {
		_ = r.provider.Close()
	}

	if r.consumer != nil {
		_ = r.consumer.Close()
	}
}

func historyFile(cfg Config) string {
	if cfg.HistoryDir != "" {
		return filepath.Join(cfg.HistoryDir, ".byztimectl_history")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".byztimectl_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile(r.cfg)); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	role := "consumer"
	if r.provider != nil {
		role = "provider+consumer"
	}

	fmt.Printf("byztimectl - %s (region=%s)\n", role, r.cfg.RegionPath)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("byztime> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()
		case "get":
			r.cmdGet()
		case "global":
			r.cmdGlobal()
		case "set":
			r.cmdSet(args)
		case "update-real":
			r.cmdUpdateReal()
		case "raw":
			r.cmdRaw()
		case "slew":
			r.cmdSlew(args)
		case "step":
			r.cmdStep()
		case "drift":
			r.cmdDrift(args)
		case "watch":
			r.cmdWatch(args)
		case "config":
			r.cmdConfig()
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(r.cfg); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"get", "global", "set", "update-real", "raw",
		"slew", "step", "drift", "watch", "config",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  get                          Show current (min, est, max) offset")
	fmt.Println("  global                       Show current (min, est, max) global time")
	fmt.Println("  set <sec> <nsec> <err-sec>   Publish a new entry (writer only)")
	fmt.Println("  update-real                  Recompute real_offset (writer only)")
	fmt.Println("  raw                          Show the raw current entry (writer only)")
	fmt.Println("  slew <min> <max> [maxerr]    Switch to slew mode with the given ppb rates")
	fmt.Println("  step                         Switch to step mode")
	fmt.Println("  drift [ppb]                  Show or set the drift setting")
	fmt.Println("  watch [interval-ms]          Poll get_global_time until interrupted")
	fmt.Println("  config                       Show effective configuration")
	fmt.Println("  help                         Show this help")
	fmt.Println("  exit / quit / q              Exit")
}

func formatResult(r byztime.Result) string {
	return fmt.Sprintf("min=%s est=%s max=%s", r.Min, r.Est, r.Max)
}

func (r *REPL) cmdGet() {
	if r.consumer == nil {
		fmt.Println("Error: no consumer context open")

		return
	}

	result, err := r.consumer.GetOffset()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println(formatResult(result))
}

func (r *REPL) cmdGlobal() {
	if r.consumer == nil {
		fmt.Println("Error: no consumer context open")

		return
	}

	result, err := r.consumer.GetGlobalTime()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println(formatResult(result))
}

func (r *REPL) cmdSet(args []string) {
	if r.provider == nil {
		fmt.Println("Error: not opened with --writer")

		return
	}

	if len(args) < 3 {
		fmt.Println("Usage: set <offset-sec> <offset-nsec> <error-sec>")

		return
	}

	sec, err1 := strconv.ParseInt(args[0], 10, 64)
	nsec, err2 := strconv.ParseInt(args[1], 10, 64)
	errSec, err3 := strconv.ParseInt(args[2], 10, 64)

	if err1 != nil || err2 != nil || err3 != nil {
		fmt.Println("Error: arguments must be integers")

		return
	}

	offset := stamp.Stamp{Sec: sec, Nsec: nsec}
	errBound := stamp.Stamp{Sec: errSec, Nsec: 0}

	if err := r.provider.SetOffset(offset, errBound, nil); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: published offset=%s error=%s\n", offset, errBound)
}

func (r *REPL) cmdUpdateReal() {
	if r.provider == nil {
		fmt.Println("Error: not opened with --writer")

		return
	}

	if err := r.provider.UpdateRealOffset(); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK: real_offset updated")
}

func (r *REPL) cmdRaw() {
	if r.provider == nil {
		fmt.Println("Error: not opened with --writer")

		return
	}

	entry, err := r.provider.GetOffsetRaw()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("offset=%s error=%s as_of=%s\n", entry.Offset, entry.Error, entry.AsOf)
}

func (r *REPL) cmdSlew(args []string) {
	if r.consumer == nil {
		fmt.Println("Error: no consumer context open")

		return
	}

	if len(args) < 2 {
		fmt.Println("Usage: slew <min-ppb> <max-ppb|none> [maxerror-sec]")

		return
	}

	minRate, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Println("Error: min-ppb must be an integer")

		return
	}

	maxRate := int64(byztime.NoRateBound)

	if args[1] != "none" {
		maxRate, err = strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fmt.Println("Error: max-ppb must be an integer or 'none'")

			return
		}
	}

	var maxErrPtr *stamp.Stamp

	if len(args) >= 3 {
		sec, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			fmt.Println("Error: maxerror-sec must be an integer")

			return
		}

		maxErr := stamp.Stamp{Sec: sec}
		maxErrPtr = &maxErr
	}

	if err := r.consumer.Slew(minRate, maxRate, maxErrPtr); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK: slew mode engaged")
}

func (r *REPL) cmdStep() {
	if r.consumer == nil {
		fmt.Println("Error: no consumer context open")

		return
	}

	r.consumer.Step()
	fmt.Println("OK: step mode engaged")
}

func (r *REPL) cmdDrift(args []string) {
	if r.consumer == nil {
		fmt.Println("Error: no consumer context open")

		return
	}

	if len(args) == 0 {
		fmt.Printf("Drift: %d ppb\n", r.consumer.GetDrift())

		return
	}

	ppb, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Println("Error: ppb must be an integer")

		return
	}

	r.consumer.SetDrift(ppb)
	fmt.Printf("OK: drift set to %d ppb\n", ppb)
}

func (r *REPL) cmdWatch(args []string) {
	if r.consumer == nil {
		fmt.Println("Error: no consumer context open")

		return
	}

	interval := 500 * time.Millisecond

	if len(args) >= 1 {
		ms, err := strconv.Atoi(args[0])
		if err != nil || ms <= 0 {
			fmt.Println("Error: interval-ms must be a positive integer")

			return
		}

		interval = time.Duration(ms) * time.Millisecond
	}

	fmt.Println("Press Ctrl-C to stop.")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		result, err := r.consumer.GetGlobalTime()
		if err != nil {
			fmt.Printf("Error: %v\n", err)

			return
		}

		fmt.Println(formatResult(result))
	}
}

func (r *REPL) cmdConfig() {
	out, err := FormatConfig(r.cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println(out)
}

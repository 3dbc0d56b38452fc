// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// fuzzfleet-launch runs a demonstration fuzzing campaign: one worker
// per configured core, all sharing findings through a machine-local
// broker, optionally joined across machines by a centralized broker.
//
// The same binary is every process in the campaign. The launcher
// re-executes it for each worker; environment markers route a new
// process into its role, so main stays oblivious to which process it
// is.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/fuzzfleet/fuzzfleet/launcher"
	"github.com/fuzzfleet/fuzzfleet/lib/config"
	"github.com/fuzzfleet/fuzzfleet/lib/process"
	"github.com/fuzzfleet/fuzzfleet/monitor"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  = pflag.String("config", "", "campaign config file (or $FUZZFLEET_CONFIG)")
		name        = pflag.String("name", "", "campaign name, overrides the config file")
		coreSpec    = pflag.String("cores", "", "cores to fuzz on (\"all\", \"0-3,6\"), overrides the config file")
		brokerPort  = pflag.Uint16("broker-port", 0, "first-tier broker port, overrides the config file")
		stdoutFile  = pflag.String("stdout-file", "", "redirect worker stdout to this file")
		stderrFile  = pflag.String("stderr-file", "", "redirect worker stderr to this file (defaults to the stdout file)")
		strategy    = pflag.String("spawn-strategy", "auto", "worker spawn strategy: auto, native, or re-exec")
		centralized = pflag.Bool("centralized", false, "run a two-tier campaign with a centralized broker")
		debug       = pflag.Bool("debug-output", false, "let workers write to this terminal instead of the redirect files")
		iterations  = pflag.Int("iterations", 100000, "target executions per worker for the demo fuzzer")
		verbose     = pflag.BoolP("verbose", "v", false, "debug logging")
	)
	pflag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	campaign, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *name != "" {
		campaign.Name = *name
	}
	if *coreSpec != "" {
		campaign.Cores = *coreSpec
	}
	if *brokerPort != 0 {
		campaign.BrokerPort = *brokerPort
	}
	if *stdoutFile != "" {
		campaign.StdoutFile = *stdoutFile
	}
	if *stderrFile != "" {
		campaign.StderrFile = *stderrFile
	}

	spawnStrategy, err := launcher.ParseStrategy(*strategy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := launcher.Launcher{
		Config:      campaign,
		RunClient:   demoFuzzer(*iterations),
		Monitor:     monitor.NewLogMonitor(logger),
		Strategy:    spawnStrategy,
		DebugOutput: *debug,
		Logger:      logger,
	}
	if *centralized {
		centralizedLauncher := &launcher.CentralizedLauncher{Launcher: base}
		return centralizedLauncher.Launch(ctx)
	}
	return base.Launch(ctx)
}

// demoState is what a demo worker persists across restarts.
type demoState struct {
	Executions uint64 `cbor:"executions"`
	CorpusSize uint64 `cbor:"corpus_size"`
	Objectives uint64 `cbor:"objectives"`
}

// demoFuzzer is a stand-in worker body: it mutates random inputs,
// counts an "objective" when a mutation hits the magic prefix, and
// shares those inputs with the other workers.
func demoFuzzer(iterations int) launcher.ClientFunc {
	return func(ctx context.Context, client *launcher.Client) error {
		var state demoState
		if client.State != nil {
			if err := client.State.DecodeInto(&state); err != nil {
				return fmt.Errorf("decoding restored state: %w", err)
			}
			slog.Info("resuming from snapshot", "executions", state.Executions)
		}

		rng := rand.New(rand.NewSource(int64(client.Core) + 1))
		input := make([]byte, 32)

		for i := 0; i < iterations; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case shared, ok := <-client.Endpoint.Events():
				if ok {
					state.CorpusSize++
					slog.Debug("imported shared finding", "bytes", len(shared))
				}
			default:
			}

			rng.Read(input)
			state.Executions++
			if input[0] == 0xfe && input[1] == 0xed {
				state.Objectives++
				state.CorpusSize++
				if err := client.Endpoint.Publish(input); err != nil {
					return fmt.Errorf("publishing finding: %w", err)
				}
			}

			if state.Executions%10000 == 0 {
				if err := client.Endpoint.ReportStats(monitor.ClientStats{
					Executions: state.Executions,
					CorpusSize: state.CorpusSize,
					Objectives: state.Objectives,
				}); err != nil {
					return fmt.Errorf("reporting stats: %w", err)
				}
				if err := client.Endpoint.SaveState(state); err != nil {
					return fmt.Errorf("saving state: %w", err)
				}
			}
		}

		return client.Endpoint.ReportStats(monitor.ClientStats{
			Executions: state.Executions,
			CorpusSize: state.CorpusSize,
			Objectives: state.Objectives,
		})
	}
}

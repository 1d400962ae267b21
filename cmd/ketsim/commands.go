package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/ketgo"
	"github.com/hupe1980/ketgo/comm"
	"github.com/hupe1980/ketgo/comm/tcp"
	"github.com/hupe1980/ketgo/gate"
	"github.com/hupe1980/ketgo/partition"
)

type commonFlags struct {
	logLevel    string
	output      string
	amplitudes  bool
	metricsAddr string
	linger      time.Duration
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error); empty disables logging")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "output format (text, yaml)")
	cmd.Flags().BoolVar(&f.amplitudes, "amplitudes", false, "print the final amplitudes (small registers only)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&f.linger, "linger", 0, "keep serving metrics this long after the run")
}

// runConfig builds the run configuration and starts the metrics server. The
// returned stop function shuts the server down after the linger period.
func (f *commonFlags) runConfig(cmd *cobra.Command) (runConfig, func(), error) {
	cfg := runConfig{amplitudes: f.amplitudes}
	stop := func() {}

	if f.logLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(f.logLevel)); err != nil {
			return cfg, stop, fmt.Errorf("log level: %w", err)
		}
		cfg.logger = ketgo.NewTextLogger(level)
	}

	if f.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		cfg.registry = reg
		srv := &http.Server{
			Addr:              f.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintln(cmd.ErrOrStderr(), "metrics server:", err)
			}
		}()
		stop = func() {
			if f.linger > 0 {
				time.Sleep(f.linger)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}
	}
	return cfg, stop, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ketsim",
		Short:         "Distributed quantum state-vector simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newWorkerCmd(), newLayoutCmd(), newGatesCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var flags commonFlags
	cmd := &cobra.Command{
		Use:   "run [run file]",
		Short: "Run a circuit with all ranks inside this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rf, err := LoadRunFile(args[0])
			if err != nil {
				return err
			}
			cfg, stop, err := flags.runConfig(cmd)
			if err != nil {
				return err
			}
			defer stop()

			res, err := runInproc(cmd.Context(), rf, cfg)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), res, flags.output)
		},
	}
	flags.register(cmd)
	return cmd
}

func newWorkerCmd() *cobra.Command {
	var (
		flags     commonFlags
		rank      int
		peers     string
		codecName string
		session   string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "worker [run file]",
		Short: "Run one rank of a circuit, connected to its peers over TCP",
		Long: `Run one rank of a circuit. Start one worker per address in --peers, each
with its own --rank. Rank 0 prints the result.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rf, err := LoadRunFile(args[0])
			if err != nil {
				return err
			}
			addrs := strings.Split(peers, ",")
			if len(addrs) != rf.Ranks {
				return fmt.Errorf("run file wants %d ranks, --peers lists %d", rf.Ranks, len(addrs))
			}
			if rank < 0 || rank >= len(addrs) {
				return fmt.Errorf("rank %d out of range", rank)
			}
			codec, err := tcp.ParseCodec(codecName)
			if err != nil {
				return err
			}
			opts := []tcp.Option{tcp.WithCodec(codec)}
			if session != "" {
				id, err := uuid.Parse(session)
				if err != nil {
					return fmt.Errorf("session: %w", err)
				}
				opts = append(opts, tcp.WithSession(id))
			}

			cfg, stop, err := flags.runConfig(cmd)
			if err != nil {
				return err
			}
			defer stop()
			if cfg.logger != nil {
				opts = append(opts, tcp.WithLogger(cfg.logger.Logger))
			}

			ln, err := tcp.Listen(addrs[rank])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			t, err := tcp.Connect(ctx, ln, rank, addrs, opts...)
			cancel()
			if err != nil {
				return err
			}
			c := comm.New(t)
			defer c.Close()

			res, err := simulate(cmd.Context(), rf, c, cfg)
			if err != nil {
				return err
			}
			if rank != 0 {
				return nil
			}
			return writeResult(cmd.OutOrStdout(), res, flags.output)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&rank, "rank", 0, "rank of this worker")
	cmd.Flags().StringVar(&peers, "peers", "", "comma-separated listen addresses of all ranks, in rank order")
	cmd.Flags().StringVar(&codecName, "codec", "none", "payload compression (none, lz4, zstd)")
	cmd.Flags().StringVar(&session, "session", "", "session UUID shared by all workers")
	cmd.Flags().DurationVar(&timeout, "connect-timeout", 30*time.Second, "time to wait for all peers")
	_ = cmd.MarkFlagRequired("peers")
	return cmd
}

func newLayoutCmd() *cobra.Command {
	var cfg partition.Config
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the partition of a register",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := partition.Compute(cfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, l.String())
			fmt.Fprintf(w, "amplitudes per rank: %d\n", l.DataBlockSize)
			fmt.Fprintf(w, "pages per rank:      %d x %d amplitudes\n", l.PageCount, l.PageSize)
			if l.StagingEnabled() {
				fmt.Fprintf(w, "on-cache buffer:     %d amplitudes\n", l.OnCacheSize())
			}
			fmt.Fprintf(w, "bytes per rank:      %d\n", (l.PageCount+1)*l.PageSize*16)
			return nil
		},
	}
	cmd.Flags().IntVar(&cfg.NumQubits, "qubits", 0, "number of qubits")
	cmd.Flags().IntVar(&cfg.NumRanks, "ranks", 1, "number of ranks (power of two)")
	cmd.Flags().IntVar(&cfg.PageQubits, "page-qubits", 0, "page qubits per rank")
	cmd.Flags().IntVar(&cfg.OnCacheQubits, "on-cache-qubits", 0, "on-cache buffer qubits (0 disables staging)")
	_ = cmd.MarkFlagRequired("qubits")
	return cmd
}

func newGatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gates",
		Short: "List the gate names accepted in run files",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			names, params := gate.Names()
			w := cmd.OutOrStdout()
			for i, name := range names {
				fmt.Fprintf(w, "%-8s params=%d\n", name, params[i])
			}
			fmt.Fprintln(w, "prefix any name with C to add a control qubit (e.g. CH, CCZ)")
		},
	}
}

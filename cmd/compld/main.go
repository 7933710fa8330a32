// Command compld loads the completion module and serves its device,
// and provides small clients for it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"complgate/compld"
	"complgate/config"
	db "complgate/debug"
	"complgate/devreg"
	"complgate/gatedev"
	"complgate/loadgen"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "compld",
		Short: "Completion gate device",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			db.Name("compld " + cmd.Name())
		},
	}
	rootCmd.PersistentFlags().String("debug", "", "debug selectors, e.g., GATE;WAITQ")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the module and serve its device until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if mnt, _ := cmd.Flags().GetString("mount"); mnt != "" {
				cfg.Mount = mnt
			}
			if fd, _ := cmd.Flags().GetBool("fusedebug"); fd {
				cfg.FuseDebug = true
			}
			if cfg.Mount == "" {
				return errors.New("no mount point")
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
	serveCmd.Flags().String("config", "", "YAML config file")
	serveCmd.Flags().String("mount", "", "FUSE mount point")
	serveCmd.Flags().String("sharing", "", "gate sharing: global or per-open")
	serveCmd.Flags().Bool("fusedebug", false, "log FUSE requests")

	readCmd := &cobra.Command{
		Use:   "read PATH",
		Short: "Block until the device at PATH is signaled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := waitSignal(f)
			if err != nil {
				return err
			}
			fmt.Printf("signaled (%d bytes)\n", n)
			return nil
		},
	}

	writeCmd := &cobra.Command{
		Use:   "write PATH [DATA]",
		Short: "Signal the device at PATH",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.OpenFile(args[0], os.O_WRONLY, 0)
			if err != nil {
				return err
			}
			defer f.Close()
			data := "done"
			if len(args) > 1 {
				data = args[1]
			}
			n, err := f.Write([]byte(data))
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes\n", n)
			return nil
		},
	}

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure writer-to-reader handshake latency in-process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Mount = ""
			nreader, _ := cmd.Flags().GetInt("readers")
			nround, _ := cmd.Flags().GetInt("rounds")
			rps, _ := cmd.Flags().GetInt("rps")
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return bench(ctx, cfg, nreader, nround, rps)
		},
	}
	benchCmd.Flags().String("config", "", "YAML config file")
	benchCmd.Flags().String("sharing", "", "gate sharing: global or per-open")
	benchCmd.Flags().Int("readers", 4, "number of readers")
	benchCmd.Flags().Int("rounds", 10000, "number of handshakes")
	benchCmd.Flags().Int("rps", 0, "max handshakes per second (0 for no limit)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, readCmd, writeCmd, benchCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// waitSignal blocks in one read of r.  The device transfers no data,
// which a file reports as EOF; that is a successful wait.
func waitSignal(r io.Reader) (int, error) {
	n, err := r.Read(make([]byte, 1))
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	return n, nil
}

// loadConfig reads --config, if any, and applies --sharing and
// --debug on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if pn, _ := cmd.Flags().GetString("config"); pn != "" {
		c, err := config.Load(pn)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if s, _ := cmd.Flags().GetString("sharing"); s != "" {
		if _, err := gatedev.ParseSharing(s); err != nil {
			return nil, err
		}
		cfg.Sharing = s
	}
	if d, _ := cmd.Flags().GetString("debug"); d != "" {
		cfg.Debug = d
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	cd, err := compld.Init(cfg, devreg.NewRegistry())
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	db.DPrintf(db.ALWAYS, "serving %v at %v", cfg.Name, cd.Mountpoint())
	cd.Serve(ctx)
	return cd.Teardown()
}

func bench(ctx context.Context, cfg *config.Config, nreader, nround, rps int) error {
	cd, err := compld.Init(cfg, devreg.NewRegistry())
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer cd.Teardown()

	lg := loadgen.MakeLoadGenerator(cd.Registry(), cfg.Name, nreader, nround, rps)
	if err := lg.Run(ctx); err != nil {
		return err
	}
	st, err := lg.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("%v sharing, %d readers\n%v\n", cfg.SharingMode(), nreader, st)
	return nil
}

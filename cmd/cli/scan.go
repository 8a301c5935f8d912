package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/portrisk/internal/config"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/risk"
	"github.com/anstrom/portrisk/internal/scanning"
)

// scanOptions holds the flags of the scan command.
type scanOptions struct {
	target      string
	ports       string
	concurrency int
	timeout     time.Duration
	scanTimeout time.Duration
	output      string
	progress    bool
}

var scanOpts scanOptions

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a host for open TCP ports and assess their risk",
	Long: `Scan a single host for open TCP ports using full connect probes, then
classify the open ports against the risk table.

At most --concurrency connection attempts are in flight at any time. Press
Ctrl-C to stop a scan early; the ports found so far are still reported.`,
	Example: `  portrisk scan --target 192.168.1.10
  portrisk scan --target localhost --ports 1-65535 --concurrency 500
  portrisk scan --target example.com --ports 443 --timeout 3s
  portrisk scan --target 10.0.0.5 --output json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return executeScan(ctx, cfg, &scanOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanOpts.target, "target", "t", "", "host name or IP address to scan")
	scanCmd.Flags().StringVarP(&scanOpts.ports, "ports", "p", "", "port or inclusive port range, e.g. 22 or 1-1000 (default from config)")
	scanCmd.Flags().IntVarP(&scanOpts.concurrency, "concurrency", "c", 0, "maximum simultaneous connection attempts (default from config)")
	scanCmd.Flags().DurationVar(&scanOpts.timeout, "timeout", 0, "timeout for each connection attempt (default from config)")
	scanCmd.Flags().DurationVar(&scanOpts.scanTimeout, "scan-timeout", 0, "timeout for the whole scan, 0 for none")
	scanCmd.Flags().StringVarP(&scanOpts.output, "output", "o", outputTable, "output format: table or json")
	scanCmd.Flags().BoolVar(&scanOpts.progress, "progress", false, "print each open port as it is found")

	_ = scanCmd.MarkFlagRequired("target")
}

// scannerOptions lets tests swap the prober.
var scannerOptions []scanning.Option

// executeScan runs one scan and prints the result. Cancelling ctx stops the
// scan and prints whatever was found so far.
func executeScan(ctx context.Context, cfg *config.Config, opts *scanOptions, out, errOut io.Writer) error {
	if err := validateOutputFormat(opts.output); err != nil {
		return err
	}

	portSpec := opts.ports
	if portSpec == "" {
		portSpec = cfg.Scanning.DefaultPorts
	}
	start, end, err := scanning.ParsePortRange(portSpec)
	if err != nil {
		return err
	}

	scanCfg := cfg.ScannerConfig()
	if opts.timeout > 0 {
		scanCfg.ProbeTimeout = opts.timeout
	}
	if opts.scanTimeout > 0 {
		scanCfg.ScanTimeout = opts.scanTimeout
	}

	logger := logging.Default()
	scanner := scanning.NewScanner(scanCfg, append([]scanning.Option{scanning.WithLogger(logger)}, scannerOptions...)...)

	target := scanning.Target{
		Host:          opts.target,
		StartPort:     start,
		EndPort:       end,
		MaxConcurrent: opts.concurrency,
	}

	var progress scanning.ProgressFunc
	if opts.progress {
		progress = func(p scanning.Progress) {
			fmt.Fprintf(errOut, "open %s:%d (%d/%d probed)\n", p.Host, p.Port, p.Probed, p.Total)
		}
	}

	logger.Info("Starting scan", "target", target.Host, "start_port", start, "end_port", end)
	result, err := scanner.ScanWithProgress(ctx, target, progress)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	assessment := risk.Classify(result.OpenPorts)
	logger.Info("Scan finished",
		"target", target.Host,
		"open_ports", len(result.OpenPorts),
		"probed", result.Probed,
		"canceled", result.Canceled,
		"overall_risk", assessment.Overall.String())

	return renderScan(out, opts.output, result, assessment)
}

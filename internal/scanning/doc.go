// Package scanning provides the TCP connect scanning engine for portrisk.
//
// A scan tries a full TCP connection to every port in an inclusive range on a
// single host and reports which ports accepted. Connection attempts run
// concurrently under a fixed cap: a new attempt starts as soon as any running
// attempt finishes, so at most Target.MaxConcurrent attempts are ever in
// flight for one scan.
//
// # Main Components
//
//   - Target: what to scan (host, port range, concurrency cap)
//   - Scanner: runs scans and reports results, metrics and progress
//   - Prober: performs a single connection attempt; TCPProber is the default
//   - Limiter: the concurrency cap, with in-flight and peak accounting
//   - ScanResult: ascending, de-duplicated open ports plus run metadata
//
// Every attempt ends in exactly one Outcome. Callers of Scan only see the
// coarse open/not-open split through ScanResult.OpenPorts; the finer
// outcomes are surfaced through metrics, debug logging and Prober results.
//
// # Usage
//
//	scanner := scanning.NewScanner(scanning.DefaultConfig())
//	result, err := scanner.Scan(ctx, scanning.Target{
//		Host:          "127.0.0.1",
//		StartPort:     1,
//		EndPort:       1024,
//		MaxConcurrent: 100,
//	})
//	if err != nil {
//		return err
//	}
//	fmt.Println(result.OpenPorts)
//
// Cancelling ctx stops the scan early. Scan then returns the open ports found
// so far with ScanResult.Canceled set and a nil error.
package scanning

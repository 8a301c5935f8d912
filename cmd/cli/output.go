package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/risk"
	"github.com/anstrom/portrisk/internal/scanning"
)

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
)

func validateOutputFormat(format string) error {
	switch format {
	case outputTable, outputJSON:
		return nil
	default:
		return errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("unsupported output format %q (use table or json)", format))
	}
}

// scanReport is the JSON document printed by `portrisk scan --output json`.
type scanReport struct {
	Result     *scanning.ScanResult `json:"result"`
	Assessment risk.Assessment      `json:"assessment"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderScan prints a scan result and its assessment.
func renderScan(w io.Writer, format string, result *scanning.ScanResult, assessment risk.Assessment) error {
	if format == outputJSON {
		return writeJSON(w, scanReport{Result: result, Assessment: assessment})
	}

	target := result.Target
	fmt.Fprintf(w, "Scan of %s ports %d-%d\n", target.Host, target.StartPort, target.EndPort)
	fmt.Fprintf(w, "Probed %d of %d ports in %s\n", result.Probed, result.Total, result.Duration.Round(time.Millisecond))
	if result.TimedOut {
		fmt.Fprintln(w, "Scan timed out, results are partial")
	} else if result.Canceled {
		fmt.Fprintln(w, "Scan was interrupted, results are partial")
	}
	fmt.Fprintln(w)

	if len(result.OpenPorts) == 0 {
		fmt.Fprintln(w, "No open ports found.")
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("Port", "Service", "Risk", "Description")
		for _, port := range result.OpenPorts {
			row := []string{strconv.Itoa(port), "unknown", "-", ""}
			if entry, ok := risk.Lookup(port); ok {
				row = []string{strconv.Itoa(port), entry.Service, entry.Level.String(), entry.Description}
			}
			if err := table.Append(row); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	renderSummary(w, assessment)
	return nil
}

// renderAssessment prints the classification of an explicit port list.
func renderAssessment(w io.Writer, format string, assessment risk.Assessment) error {
	if format == outputJSON {
		return writeJSON(w, assessment)
	}

	if len(assessment.Entries) == 0 {
		fmt.Fprintln(w, "None of the given ports are in the risk table.")
	} else if err := renderEntries(w, assessment.Entries); err != nil {
		return err
	}

	fmt.Fprintln(w)
	renderSummary(w, assessment)
	return nil
}

// renderTable prints the full risk table.
func renderTable(w io.Writer, format string, entries []risk.Entry) error {
	if format == outputJSON {
		return writeJSON(w, entries)
	}
	return renderEntries(w, entries)
}

func renderEntries(w io.Writer, entries []risk.Entry) error {
	table := tablewriter.NewWriter(w)
	table.Header("Port", "Service", "Risk", "Description")
	for _, entry := range entries {
		if err := table.Append([]string{
			strconv.Itoa(entry.Port),
			entry.Service,
			entry.Level.String(),
			entry.Description,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderSummary(w io.Writer, assessment risk.Assessment) {
	fmt.Fprintf(w, "Risky ports: %d\n", assessment.RiskyCount)
	fmt.Fprintf(w, "Overall risk: %s\n", assessment.Overall)
}

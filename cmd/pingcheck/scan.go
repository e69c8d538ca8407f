package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/pingcheck/internal/model"
	"github.com/user/pingcheck/internal/scan"
	"github.com/user/pingcheck/internal/util"
)

var (
	scanFlags targetFlags
	jsonOut   bool
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Probe the targets once and print the results",
	Long: `Probe every target in order and print one line per result.

Ctrl+C stops the run after the target being probed; the probe in flight
is never interrupted.`,
	RunE: runScan,
}

func init() {
	scanFlags.register(scanCmd)
	scanCmd.Flags().BoolVar(&jsonOut, "json", false, "print results as JSON lines")
}

func runScan(cmd *cobra.Command, args []string) error {
	list, source, err := scanFlags.load()
	if err != nil {
		return err
	}

	orch := newOrchestrator()
	run, err := orch.Start(cmd.Context(), list, scanFlags.timeoutSeconds())
	if err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			util.Warn("Received shutdown signal, stopping after current target", "run", run.ID)
			orch.Cancel(run)
		case <-run.Done():
		}
	}()

	var out eventWriter = &textWriter{w: os.Stdout, source: source, timeout: run.Timeout()}
	if jsonOut {
		out = &jsonWriter{enc: json.NewEncoder(os.Stdout)}
	}

	var failed int
	for ev := range run.Events().C() {
		if r, ok := ev.(scan.Result); ok && r.Failed() {
			failed++
		}
		if err := out.write(ev); err != nil {
			orch.Cancel(run)
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	util.Debug("Scan output done", "run", run.ID, "failed", failed)
	return nil
}

type eventWriter interface {
	write(ev scan.Event) error
}

type textWriter struct {
	w       io.Writer
	source  string
	timeout time.Duration
}

func (t *textWriter) write(ev scan.Event) error {
	var err error
	switch ev := ev.(type) {
	case scan.Scanning:
		if ev.Index == 0 {
			_, err = fmt.Fprintf(t.w, "%s\n", dimStyle.Render(fmt.Sprintf("Scanning %d targets from %s, timeout %s", ev.Total, t.source, t.timeout)))
		}
	case scan.Result:
		_, err = fmt.Fprintln(t.w, formatResult(ev.ProbeResult))
	case scan.Finished:
		msg := "Scanning complete."
		if !ev.Completed {
			msg = "Scanning stopped."
		}
		_, err = fmt.Fprintln(t.w, dimStyle.Render(fmt.Sprintf("%s %d scanned.", msg, ev.Scanned)))
	}
	return err
}

func formatResult(r model.ProbeResult) string {
	port := "-"
	if r.Target.HasPort() {
		port = r.Target.PortLabel()
	}
	line := fmt.Sprintf("%-16s %-24s %-5s %-22s %-18s %-12s %s",
		r.Target.Name, r.Target.Host, port,
		r.Connection.Label(), r.Reach.Label(), r.PortStateLabel(), r.LatencyLabel())
	if r.Failed() {
		return failStyle.Render(line)
	}
	return okStyle.Render(line)
}

// jsonWriter prints results and the final summary as JSON lines.
type jsonWriter struct {
	enc *json.Encoder
}

type jsonFinished struct {
	Completed bool `json:"completed"`
	Scanned   int  `json:"scanned"`
}

func (j *jsonWriter) write(ev scan.Event) error {
	switch ev := ev.(type) {
	case scan.Result:
		return j.enc.Encode(ev.ProbeResult)
	case scan.Finished:
		return j.enc.Encode(jsonFinished{Completed: ev.Completed, Scanned: ev.Scanned})
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/pingcheck/internal/model"
	"github.com/user/pingcheck/internal/probes"
	"github.com/user/pingcheck/internal/scan"
	"github.com/user/pingcheck/internal/storage"
	"github.com/user/pingcheck/internal/targets"
	"github.com/user/pingcheck/internal/util"
)

// targetFlags selects where a command reads its targets from.
type targetFlags struct {
	file    string
	set     string
	timeout int
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "targets", "t", "",
		"target file: JSON or YAML mapping of name to host[:port]")
	cmd.Flags().StringVarP(&f.set, "set", "s", "",
		"saved target set name")
	cmd.Flags().IntVar(&f.timeout, "timeout", 0,
		"per-probe timeout in seconds (default from config)")
	cmd.MarkFlagsMutuallyExclusive("targets", "set")
}

// load returns the targets and a label for where they came from. Without
// flags the configured targets_file is used.
func (f *targetFlags) load() ([]model.Target, string, error) {
	if f.set != "" {
		db, err := storage.Open(cfg.DBPath())
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		set, err := storage.NewTargetSetStorage(db).LoadSet(f.set)
		if err != nil {
			return nil, "", err
		}
		return set.Targets, set.Name, nil
	}

	path := f.file
	if path == "" {
		path = cfg.TargetsFile
	}
	if path == "" {
		return nil, "", fmt.Errorf("no targets: use --targets FILE or --set NAME")
	}
	if !util.FileExists(path) {
		return nil, "", fmt.Errorf("target file not found: %s", path)
	}
	list, err := targets.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	return list, path, nil
}

func (f *targetFlags) timeoutSeconds() int {
	if f.timeout != 0 {
		return f.timeout
	}
	return cfg.TimeoutSeconds
}

func newOrchestrator() *scan.Orchestrator {
	return scan.NewOrchestrator(scan.Prober{
		Reach: probes.NewReachability(cfg.ReachabilityMethod, cfg.PingCount),
		Ports: probes.NewTCPChecker(),
	})
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/macawi-ai/domovoi/pkg/archive"
	"github.com/macawi-ai/domovoi/pkg/config"
	"github.com/macawi-ai/domovoi/pkg/events"
)

type verifyReport struct {
	Source   string `json:"source"`
	Verified bool   `json:"verified"`
	Events   int    `json:"events"`
	Head     string `json:"head_hash,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// runVerifyCmd implements `domovoi verify`. It checks the hash chain of a
// bundle file, or of an archived run addressed by its manifest key.
//
// Exit codes:
//
//	0 = verification passed
//	1 = verification failed
//	2 = usage or runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bundle      string
		manifestKey string
		configPath  string
		jsonOutput  bool
	)

	cmd.StringVar(&bundle, "bundle", "", "Path to a zstd JSONL event bundle")
	cmd.StringVar(&manifestKey, "manifest", "", "Manifest key of an archived run (needs --config)")
	cmd.StringVar(&configPath, "config", "", "Configuration naming the archive backend")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if (bundle == "") == (manifestKey == "") {
		_, _ = fmt.Fprintln(stderr, "Error: exactly one of --bundle or --manifest is required")
		return 2
	}

	var (
		report verifyReport
		evs    []events.Event
	)
	if bundle != "" {
		report.Source = bundle
		f, err := os.Open(bundle) //nolint:gosec // path comes from the operator
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		evs, err = archive.ReadBundle(f)
		_ = f.Close()
		if err != nil {
			report.Reason = err.Error()
			return finishVerify(stdout, report, jsonOutput)
		}
	} else {
		report.Source = manifestKey
		if configPath == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --manifest needs --config")
			return 2
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		ctx := context.Background()
		st, err := archive.NewStoreFromConfig(ctx, cfg.Archive)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if st == nil {
			_, _ = fmt.Fprintln(stderr, "Error: the configuration has no archive")
			return 2
		}
		m, loaded, err := archive.Load(ctx, st, manifestKey)
		if err != nil {
			report.Reason = err.Error()
			return finishVerify(stdout, report, jsonOutput)
		}
		report.RunID = m.RunID
		evs = loaded
	}

	report.Events = len(evs)
	if len(evs) > 0 {
		report.Head = evs[len(evs)-1].Hash
	}
	if err := events.VerifyChain(evs); err != nil {
		report.Reason = err.Error()
	} else {
		report.Verified = true
	}
	return finishVerify(stdout, report, jsonOutput)
}

func finishVerify(w io.Writer, r verifyReport, asJSON bool) int {
	if asJSON {
		data, _ := json.MarshalIndent(r, "", "  ")
		_, _ = fmt.Fprintln(w, string(data))
	} else if r.Verified {
		_, _ = fmt.Fprintf(w, "Verification PASSED: %s\n", r.Source)
		_, _ = fmt.Fprintf(w, "Events: %d\n", r.Events)
		if r.Head != "" {
			_, _ = fmt.Fprintf(w, "Head: %s\n", r.Head)
		}
	} else {
		_, _ = fmt.Fprintf(w, "Verification FAILED: %s\n", r.Source)
		_, _ = fmt.Fprintf(w, "  - %s\n", r.Reason)
	}
	if !r.Verified {
		return 1
	}
	return 0
}

// CostPilot CLI - pre-deployment cost governance for IaC.
//
// Usage:
//   costpilot evaluate --plan plan.json --format terraform [options]
//
// This is the boundary layer described in spec §1: the only place the
// core's inputs touch a filesystem. It loads the artifact and every
// configuration file, calls pkg/costpilot.Evaluate once, and maps the
// resulting outcome to the canonical exit codes in spec §6.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/costpilot/costpilot/internal/arbiter"
	"github.com/costpilot/costpilot/internal/config"
	"github.com/costpilot/costpilot/internal/platform"
	"github.com/costpilot/costpilot/pkg/costpilot"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "costpilot",
		Usage:   "Pre-deployment cost governance for Infrastructure-as-Code",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"COSTPILOT_LOG_LEVEL"},
			},
		},

		Commands: []*cli.Command{
			evaluateCommand(),
			validateCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// EVALUATE COMMAND
// =============================================================================

func evaluateCommand() *cli.Command {
	return &cli.Command{
		Name:  "evaluate",
		Usage: "Evaluate an IaC artifact and produce a cost governance decision",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "plan", Required: true, Usage: "Path to the IaC artifact (Terraform plan JSON, CloudFormation template, or CDK cloud assembly directory)"},
			&cli.StringFlag{Name: "format", Required: true, Usage: "terraform | cloudformation | cdk"},
			&cli.StringFlag{Name: "heuristics", Required: true, Usage: "Path to the heuristics pricing table"},
			&cli.StringFlag{Name: "heuristics-hash", Usage: "Declared SHA-256 hash of the heuristics file, for tamper detection"},
			&cli.StringFlag{Name: "policies", Usage: "Path to the policy/exemption configuration file"},
			&cli.StringFlag{Name: "slo", Usage: "Path to the SLO configuration file"},
			&cli.StringFlag{Name: "baselines", Usage: "Path to the baselines table"},
			&cli.StringFlag{Name: "history", Usage: "Path to the SLO snapshot history file"},
			&cli.StringFlag{Name: "output", Usage: "Write the report JSON to this path instead of stdout"},
		},
		Action: runEvaluate,
	}
}

func runEvaluate(c *cli.Context) error {
	runID := uuid.NewString()
	logger := platform.InitLogger(os.Stderr, c.String("log-level"))
	logger = logger.With("run_id", runID)

	planBytes, _, err := readFileDetectEncoding(c.String("plan"))
	if err != nil {
		logger.Error("failed to read artifact", "error", err)
		os.Exit(4)
	}

	format, cdkInput, err := resolveFormat(c.String("format"), c.String("plan"))
	if err != nil {
		logger.Error("failed to resolve artifact format", "error", err)
		os.Exit(4)
	}

	cfg := costpilot.Config{Now: time.Now().UTC()}

	heuristicsBytes, _, err := readFileDetectEncoding(c.String("heuristics"))
	if err != nil {
		logger.Error("failed to read heuristics table", "error", err)
		os.Exit(5)
	}
	cfg.Heuristics, err = config.LoadHeuristics(heuristicsBytes, c.String("heuristics-hash"))
	if err != nil {
		logger.Error("failed to load heuristics table", "error", err)
		os.Exit(5)
	}

	if p := c.String("policies"); p != "" {
		data, enc, err := readFileDetectEncoding(p)
		if err != nil {
			logger.Error("failed to read policy configuration", "error", err)
			os.Exit(5)
		}
		policies, exemptions, err := config.LoadPolicies(data, enc)
		if err != nil {
			logger.Error("failed to load policy configuration", "error", err)
			os.Exit(5)
		}
		cfg.Policies = policies
		cfg.Exemptions = exemptions
	}

	if s := c.String("slo"); s != "" {
		data, enc, err := readFileDetectEncoding(s)
		if err != nil {
			logger.Error("failed to read SLO configuration", "error", err)
			os.Exit(5)
		}
		cfg.SLOs, err = config.LoadSLOs(data, enc)
		if err != nil {
			logger.Error("failed to load SLO configuration", "error", err)
			os.Exit(5)
		}
	}

	if b := c.String("baselines"); b != "" {
		data, enc, err := readFileDetectEncoding(b)
		if err != nil {
			logger.Error("failed to read baselines table", "error", err)
			os.Exit(5)
		}
		cfg.Baselines, err = config.LoadBaselines(data, enc)
		if err != nil {
			logger.Error("failed to load baselines table", "error", err)
			os.Exit(5)
		}
	}

	if h := c.String("history"); h != "" {
		data, enc, err := readFileDetectEncoding(h)
		if err != nil {
			logger.Error("failed to read snapshot history", "error", err)
			os.Exit(5)
		}
		cfg.SnapshotHistory, err = config.LoadSnapshotHistory(data, enc)
		if err != nil {
			logger.Error("failed to load snapshot history", "error", err)
			os.Exit(5)
		}
	}

	result, err := costpilot.Evaluate(planBytes, format, cdkInput, cfg)
	if err != nil {
		logger.Error("evaluation failed", "error", err)
		os.Exit(5)
	}

	if out := c.String("output"); out != "" {
		if err := os.WriteFile(out, []byte(result.ReportJSON), 0o644); err != nil {
			logger.Error("failed to write report", "error", err)
			os.Exit(5)
		}
	} else {
		fmt.Print(result.ReportJSON)
	}

	os.Exit(exitCodeFor(result))
	return nil
}

// exitCodeFor maps a Decision outcome to the spec §6 canonical exit
// codes: 0 Silent/Warn/SuggestFix, 2 Block, 3 SLO burn, 4 invalid input,
// 5 internal error / invariant violation. A hard_stop's Reason is always
// one of arbiter's HardStopCause constants (or that constant prefixing a
// resource ID), set by Arbitrate — never freeform text — so it can be
// switched on exactly here.
func exitCodeFor(result costpilot.Result) int {
	switch result.Decision.Outcome {
	case "block":
		return 2
	case "hard_stop":
		reason := result.Decision.Reason
		switch {
		case isSLOCause(reason):
			return 3
		case reason == string(arbiter.CauseAmbiguousInput), reason == string(arbiter.CauseCyclicGraph):
			return 4
		case reason == string(arbiter.CauseHeuristicsCorrupt), strings.HasPrefix(reason, string(arbiter.CauseIntervalInverted)):
			return 5
		default:
			return 4
		}
	default:
		return 0
	}
}

func isSLOCause(reason string) bool {
	const prefix = "strict_block_slo_breach"
	return len(reason) >= len(prefix) && reason[:len(prefix)] == prefix
}

// =============================================================================
// VALIDATE COMMAND — config-only syntax/schema check, no evaluation run.
// =============================================================================

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate a policy or SLO configuration file without running an evaluation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "policies", Usage: "Path to a policy configuration file"},
			&cli.StringFlag{Name: "slo", Usage: "Path to an SLO configuration file"},
		},
		Action: func(c *cli.Context) error {
			if p := c.String("policies"); p != "" {
				data, enc, err := readFileDetectEncoding(p)
				if err != nil {
					return err
				}
				if _, _, err := config.LoadPolicies(data, enc); err != nil {
					return err
				}
				fmt.Println("policies: ok")
			}
			if s := c.String("slo"); s != "" {
				data, enc, err := readFileDetectEncoding(s)
				if err != nil {
					return err
				}
				if _, err := config.LoadSLOs(data, enc); err != nil {
					return err
				}
				fmt.Println("slo: ok")
			}
			return nil
		},
	}
}

// readFileDetectEncoding reads a boundary file and infers JSON vs YAML
// from its extension (content sniffing is unnecessary here since every
// boundary file is authored by the caller, not a third party).
func readFileDetectEncoding(path string) ([]byte, config.Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, config.EncodingJSON, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return data, config.EncodingYAML, nil
	default:
		return data, config.EncodingJSON, nil
	}
}

func resolveFormat(formatFlag, path string) (costpilot.Format, *costpilot.CDKInput, error) {
	switch formatFlag {
	case "terraform":
		return costpilot.FormatTerraform, nil, nil
	case "cloudformation":
		return costpilot.FormatCloudFormation, nil, nil
	case "cdk":
		dir := path
		manifestPath := filepath.Join(dir, "manifest.json")
		manifest, err := os.ReadFile(manifestPath)
		if err != nil {
			return "", nil, fmt.Errorf("reading cdk manifest: %w", err)
		}
		loader := func(rel string) ([]byte, error) {
			return os.ReadFile(filepath.Join(dir, rel))
		}
		return costpilot.FormatCDK, &costpilot.CDKInput{Manifest: manifest, LoadTemplate: loader}, nil
	default:
		return "", nil, fmt.Errorf("unrecognized format %q", formatFlag)
	}
}

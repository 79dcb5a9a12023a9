package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inodb/vibe-consensus/internal/calls"
	"github.com/inodb/vibe-consensus/internal/consensus"
	"github.com/inodb/vibe-consensus/internal/duckdb"
	"github.com/inodb/vibe-consensus/internal/evidence"
	"github.com/inodb/vibe-consensus/internal/pipeline"
	"github.com/inodb/vibe-consensus/internal/task"
)

// errFailedReferences is returned when at least one reference produced no
// draft. Every other output has been written by then.
var errFailedReferences = errors.New("one or more references failed")

// Config keys shared by flags, presets, the config file and environment.
const (
	keyVCThreshold = "vc_threshold"
	keyMinVCScore  = "min_vc_score"
	keyAligners    = "aligners"
	keyCallers     = "callers"
	keyWorkers     = "workers"
	keyDB          = "db"
)

// configKeys lists the settings build reads from the config file.
var configKeys = []string{keyVCThreshold, keyMinVCScore, keyAligners, keyCallers, keyWorkers, keyDB}

func newBuildCmd() *cobra.Command {
	var (
		refNum      int
		evidenceTSV string
		preset      string
	)

	cmd := &cobra.Command{
		Use:   "build [flags] <task-dir>",
		Short: "Vote on caller evidence and build the draft genome of a task",
		Long: `Reads the call files of every reference of a task, votes per position
and writes one draft FASTA per reference plus the draft and evidence
summaries. References whose inputs are missing are reported and skipped;
the command then exits with status 1.`,
		Example: `  vibe-consensus build /data/tasks/adv_202102090359
  vibe-consensus build --vc-threshold 0.8 --min-vc-score 2 /data/tasks/T1
  vibe-consensus build --preset strict.yaml --db runs.duckdb /data/tasks/T1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if preset != "" {
				if err := loadPreset(viper.GetViper(), preset); err != nil {
					return err
				}
			}
			cfg, err := resolveBuildConfig(viper.GetViper(), args[0])
			if err != nil {
				return err
			}
			cfg.RefNum = refNum
			cfg.EvidenceTSV = evidenceTSV
			return runBuild(cmd, cfg, viper.GetString(keyDB))
		},
	}

	flags := cmd.Flags()
	flags.Float64(keyFlag(keyVCThreshold), consensus.DefaultVCThreshold, "allele fraction an observation must exceed to vote")
	flags.Int(keyFlag(keyMinVCScore), consensus.DefaultMinVCScore, "votes an allele needs to be accepted")
	flags.StringSlice(keyFlag(keyAligners), pipeline.DefaultAligners, "aligners whose call files are read")
	flags.StringSlice(keyFlag(keyCallers), callerNames(calls.DefaultCallers), "variant callers whose call files are read")
	flags.Int(keyFlag(keyWorkers), 0, "references processed in parallel (0 = all CPUs)")
	flags.String(keyFlag(keyDB), "", "DuckDB file recording run provenance")
	flags.IntVar(&refNum, "ref-num", 0, "number of references (0 = read from reference metadata)")
	flags.StringVar(&evidenceTSV, "evidence-tsv", "", "write a per-observation evidence report to this file")
	flags.StringVar(&preset, "preset", "", "YAML file with voting presets")

	for _, key := range configKeys {
		_ = viper.BindPFlag(key, flags.Lookup(keyFlag(key)))
	}

	return cmd
}

// keyFlag converts a config key to its flag name.
func keyFlag(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func callerNames(callers []calls.Caller) []string {
	names := make([]string, len(callers))
	for i, c := range callers {
		names[i] = string(c)
	}
	return names
}

// loadPreset merges a YAML preset into v. Flags set on the command line
// still take precedence.
func loadPreset(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read preset: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse preset %s: %w", path, err)
	}
	if err := v.MergeConfigMap(values); err != nil {
		return fmt.Errorf("apply preset %s: %w", path, err)
	}
	return nil
}

// resolveBuildConfig turns the settings in v into a pipeline config for
// the task at dir.
func resolveBuildConfig(v *viper.Viper, dir string) (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig(task.FromDir(dir))

	if v.IsSet(keyVCThreshold) {
		cfg.Consensus.VCThreshold = v.GetFloat64(keyVCThreshold)
	}
	if v.IsSet(keyMinVCScore) {
		cfg.Consensus.MinVCScore = v.GetInt(keyMinVCScore)
	}
	if v.IsSet(keyAligners) {
		cfg.Aligners = v.GetStringSlice(keyAligners)
	}
	if v.IsSet(keyCallers) {
		callers, err := calls.ParseCallers(v.GetStringSlice(keyCallers))
		if err != nil {
			return pipeline.Config{}, err
		}
		cfg.Callers = callers
	}
	cfg.Workers = v.GetInt(keyWorkers)

	if err := cfg.Validate(); err != nil {
		return pipeline.Config{}, err
	}
	return cfg, nil
}

func runBuild(cmd *cobra.Command, cfg pipeline.Config, dbPath string) error {
	info, err := os.Stat(cfg.Layout.Dir())
	if err != nil {
		return fmt.Errorf("task directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("task directory %s is not a directory", cfg.Layout.Dir())
	}

	normalizer := calls.NewNormalizer()
	normalizer.SetLogger(logger)

	runner := pipeline.NewRunner(cfg, evidence.NewFileSource(cfg.Layout, normalizer))
	runner.SetLogger(logger)

	if dbPath != "" {
		store, err := duckdb.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		runner.SetStore(store)
	}

	res, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Built %d of %d references for task %s\n", len(res.Records), res.RefNum, cfg.Layout.TaskID)
	fmt.Fprintf(out, "  Draft summary: %s\n", cfg.Layout.DraftSummary())
	fmt.Fprintf(out, "  Evidence summary: %s\n", cfg.Layout.EvidenceSummary())
	if res.RunID != "" {
		fmt.Fprintf(out, "  Run ID: %s\n", res.RunID)
	}

	if len(res.Failed) > 0 {
		for _, order := range res.FailedOrders() {
			fmt.Fprintf(cmd.ErrOrStderr(), "Reference %d failed: %v\n", order, res.Failed[order])
		}
		return errFailedReferences
	}
	return nil
}

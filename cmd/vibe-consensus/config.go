package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inodb/vibe-consensus/internal/calls"
	"github.com/inodb/vibe-consensus/internal/consensus"
	"github.com/inodb/vibe-consensus/internal/pipeline"
	"github.com/inodb/vibe-consensus/internal/task"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vibe-consensus configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.vibe-consensus.yaml.",
		Example: `  vibe-consensus config                      # show all config
  vibe-consensus config set vc_threshold 0.8  # raise the voting threshold
  vibe-consensus config get vc_threshold      # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: "Set one of the build settings (" + strings.Join(configKeys, ", ") + ").\n" +
			"Values are checked the way build checks them; lists are comma-separated.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd, args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd, args[0])
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "# No configuration set. Config file: ~/"+configName+".yaml")
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func runConfigSet(cmd *cobra.Command, key, value string) error {
	parsed, err := parseConfigValue(key, value)
	if err != nil {
		return err
	}
	viper.Set(key, parsed)

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		if cfgFile, err = defaultConfigPath(); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v in %s\n", key, parsed, cfgFile)
	return nil
}

// parseConfigValue converts a command-line value into the type build reads
// for key and rejects values build would refuse.
func parseConfigValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case keyVCThreshold:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid number %q", key, value)
		}
		cfg := consensus.DefaultConfig()
		cfg.VCThreshold = f
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return f, nil
	case keyMinVCScore:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid integer %q", key, value)
		}
		cfg := consensus.DefaultConfig()
		cfg.MinVCScore = n
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return n, nil
	case keyWorkers:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%s: expected a non-negative integer, got %q", key, value)
		}
		return n, nil
	case keyCallers:
		callers, err := calls.ParseCallers(splitList(value))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if len(callers) == 0 {
			return nil, fmt.Errorf("%s: at least one caller is required", key)
		}
		return callerNames(callers), nil
	case keyAligners:
		aligners := splitList(value)
		cfg := pipeline.DefaultConfig(task.Layout{TaskID: "config"})
		cfg.Aligners = aligners
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return aligners, nil
	case keyDB:
		return value, nil
	default:
		return nil, fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(configKeys, ", "))
	}
}

// splitList splits a comma-separated value, dropping surrounding spaces.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func runConfigGet(cmd *cobra.Command, key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), val)
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/focus/internal/config"
)

var configInitProject bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage focus configuration",
	Long: "Focus reads defaults, then the user config file, then " + config.ProjectFileName +
		" in the project root, then FOCUS_* environment variables, then flags.",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := initTarget()
		if err != nil {
			fail("%v", err)
			return nil
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(os.Stderr, "%s already exists\n", path)
			return nil
		}

		if configInitProject {
			_, err = config.SaveProject(filepath.Dir(path), config.Default())
		} else {
			err = config.Save(config.Default())
		}
		if err != nil {
			fail("writing %s: %v", path, err)
			return nil
		}
		fmt.Fprintf(os.Stdout, "Wrote %s\n", path)
		return nil
	},
}

// initTarget is the file config init writes: the user config, or with
// --project the project file at the repository root.
func initTarget() (string, error) {
	if !configInitProject {
		return config.ConfigPath()
	}
	root, err := projectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, config.ProjectFileName), nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the user config file",
	Example: "  focus config set cache.strategy lfu\n" +
		"  focus config set exclude 'vendor/**,**/*.pb.go'",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFile()
		if err != nil {
			return err
		}
		if err := config.SetField(&cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Fprintf(os.Stdout, "%s = %s\n", args[0], args[1])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one effective config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := effectiveConfig()
		if err != nil {
			return err
		}
		v, err := lookupKey(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, v)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := effectiveConfig()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	},
}

// effectiveConfig loads the config for the current project. Outside a
// project only the user file and the environment apply.
func effectiveConfig() (config.Config, error) {
	root, err := projectRoot()
	if err != nil {
		root = ""
	}
	return config.Load(root, nil)
}

// lookupKey resolves a dotted key such as cache.strategy against the JSON
// form of cfg. Lists print comma-separated, as config set accepts them.
func lookupKey(cfg config.Config, key string) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	var node any
	if err := json.Unmarshal(data, &node); err != nil {
		return "", err
	}
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", fmt.Errorf("unknown config key: %s", key)
		}
		if node, ok = m[part]; !ok {
			return "", fmt.Errorf("unknown config key: %s", key)
		}
	}
	switch v := node.(type) {
	case map[string]any:
		return "", fmt.Errorf("%s is a section, not a value", key)
	case []any:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ","), nil
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitProject, "project", false, "Write "+config.ProjectFileName+" in the project root instead")
	configCmd.AddCommand(configInitCmd, configSetCmd, configGetCmd, configShowCmd)
}

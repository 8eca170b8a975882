package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/focus/internal/gitctx"
)

const (
	hookMarkerStart = "# >>> focus pre-commit hook >>>"
	hookMarkerEnd   = "# <<< focus pre-commit hook <<<"

	// hookContextFile is written inside the git directory on every commit.
	hookContextFile = "FOCUS_CONTEXT.md"
)

var hookFormat string

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the git pre-commit hook",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Extract context for each commit from a pre-commit hook",
	Long: "Install a pre-commit hook that writes the extracted context of the " +
		"commit to " + hookContextFile + " in the git directory. The hook never blocks a commit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath()
		if err != nil {
			fail("%v", err)
			return nil
		}

		section := generateHookScript(hookFormat)

		existing, err := os.ReadFile(hookPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			fail("reading hook file: %v", err)
			return nil
		}

		var content string
		if len(existing) == 0 {
			content = "#!/bin/sh\n" + section
		} else {
			content = replaceHookSection(string(existing), section)
		}

		if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
			fail("creating hooks directory: %v", err)
			return nil
		}
		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			fail("writing hook file: %v", err)
			return nil
		}

		fmt.Fprintf(os.Stdout, "Installed focus pre-commit hook at %s\n", hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the focus pre-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath()
		if err != nil {
			fail("%v", err)
			return nil
		}

		existing, err := os.ReadFile(hookPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(os.Stdout, "No pre-commit hook found.")
				return nil
			}
			fail("reading hook file: %v", err)
			return nil
		}

		content := removeHookSection(string(existing))

		// Delete the file when only the shebang is left.
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
			if err := os.Remove(hookPath); err != nil {
				fail("removing hook file: %v", err)
				return nil
			}
			fmt.Fprintf(os.Stdout, "Removed focus pre-commit hook at %s\n", hookPath)
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			fail("writing hook file: %v", err)
			return nil
		}

		fmt.Fprintf(os.Stdout, "Removed focus section from %s\n", hookPath)
		return nil
	},
}

func getHookPath() (string, error) {
	dir := flagDir
	if dir == "" {
		dir = "."
	}
	g, err := gitctx.NewGit(dir, 0)
	if err != nil {
		return "", err
	}
	gitDir, err := g.GitDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(gitDir, "hooks", "pre-commit"), nil
}

// generateHookScript renders the hook section. Failures are reported but
// never fail the commit.
func generateHookScript(format string) string {
	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	b.WriteString(`FOCUS_OUT="$(git rev-parse --git-dir)/` + hookContextFile + "\"\n")
	fmt.Fprintf(&b, "focus extract --baseline HEAD --format %s --out \"$FOCUS_OUT\"\n", format)
	b.WriteString("FOCUS_EXIT=$?\n")
	b.WriteString("if [ $FOCUS_EXIT -ne 0 ]; then\n")
	b.WriteString("  echo \"focus: context extraction failed (exit $FOCUS_EXIT), continuing\"\n")
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

// splitHookSection returns the text around the focus section of a hook
// script. ok is false when the script has no complete section.
func splitHookSection(script string) (before, after string, ok bool) {
	i := strings.Index(script, hookMarkerStart)
	j := strings.Index(script, hookMarkerEnd)
	if i == -1 || j < i {
		return script, "", false
	}
	return script[:i], strings.TrimPrefix(script[j+len(hookMarkerEnd):], "\n"), true
}

// replaceHookSection swaps the focus section in place, or appends it.
func replaceHookSection(existing, section string) string {
	before, after, ok := splitHookSection(existing)
	if !ok {
		if existing != "" && !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}
	return before + section + after
}

func removeHookSection(existing string) string {
	before, after, _ := splitHookSection(existing)
	return before + after
}

var hookStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the focus hook is installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath()
		if err != nil {
			fail("%v", err)
			return nil
		}
		data, err := os.ReadFile(hookPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			fail("reading hook file: %v", err)
			return nil
		}
		if _, _, ok := splitHookSection(string(data)); ok {
			fmt.Fprintf(os.Stdout, "installed: %s\n", hookPath)
		} else {
			fmt.Fprintln(os.Stdout, "not installed")
		}
		return nil
	},
}

func init() {
	hookCmd.AddCommand(hookInstallCmd, hookUninstallCmd, hookStatusCmd)
	hookInstallCmd.Flags().StringVar(&hookFormat, "format", "markdown", "Output format (text, json, markdown)")
}

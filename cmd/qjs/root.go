package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caffeineduck/qjs"
	"github.com/caffeineduck/qjs/engine"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "qjs [file]",
	Short: "Sandboxed JavaScript interpreter",
	Long: `qjs - Run JavaScript on the embedded QuickJS engine.

Code can be provided via:
  - File argument: qjs script.js
  - Inline flag: qjs -e '6 * 7'
  - Stdin: echo '6 * 7' | qjs

Scripts run with no filesystem, network, or system access. Memory, stack,
and execution time limits are enforced per run.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runEval,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")
	rootCmd.PersistentFlags().String("memory", "64mb", "Script heap limit: 16mb, 64mb, 256mb, 1gb, or 'none'")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Execution timeout (0 = none)")
	rootCmd.PersistentFlags().String("module-dir", "", "Directory to resolve import specifiers from")
	rootCmd.Flags().StringP("eval", "e", "", "Code to evaluate")
}

func parseMemoryLimit(s string) (uint64, error) {
	switch strings.ToLower(s) {
	case "none", "0":
		return 0, nil
	case "16mb":
		return 16 << 20, nil
	case "64mb":
		return 64 << 20, nil
	case "256mb":
		return 256 << 20, nil
	case "1gb":
		return 1 << 30, nil
	default:
		return 0, fmt.Errorf("invalid memory limit %q (expected 16mb, 64mb, 256mb, 1gb, or none)", s)
	}
}

// newEngine builds the process engine honoring the cache flag. The disk
// cache avoids recompiling the wasm artifact on every invocation.
func newEngine(cmd *cobra.Command) (*engine.Engine, error) {
	noCache, _ := cmd.Root().PersistentFlags().GetBool("no-cache")
	if noCache {
		return engine.New()
	}
	return engine.New(engine.WithDiskCache())
}

// contextOptions translates the persistent flags into context options.
func contextOptions(cmd *cobra.Command, eng *engine.Engine) ([]qjs.Option, error) {
	memory, _ := cmd.Root().PersistentFlags().GetString("memory")
	timeout, _ := cmd.Root().PersistentFlags().GetDuration("timeout")
	moduleDir, _ := cmd.Root().PersistentFlags().GetString("module-dir")

	opts := []qjs.Option{qjs.WithEngine(eng)}

	limit, err := parseMemoryLimit(memory)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		opts = append(opts, qjs.WithMaxMemory(limit))
	}
	if timeout > 0 {
		opts = append(opts, qjs.WithTimeout(timeout))
	}
	if moduleDir != "" {
		opts = append(opts, qjs.WithModuleLoader(fileModuleLoader(moduleDir)))
	}
	return opts, nil
}

// fileModuleLoader resolves import specifiers against a directory,
// confined to it.
func fileModuleLoader(dir string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		path := filepath.Join(dir, filepath.Clean("/"+name))
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

func runEval(cmd *cobra.Command, args []string) {
	code, _ := cmd.Flags().GetString("eval")

	var source string
	filename := "<stdin>"

	switch {
	case code != "":
		source = code
		filename = "<eval>"
	case len(args) > 0:
		filename = args[0]
		data, err := os.ReadFile(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
	default:
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			cmd.Help()
			return
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
		if source == "" {
			cmd.Help()
			return
		}
	}

	eng, err := newEngine(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	opts, err := contextOptions(cmd, eng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, err := qjs.New(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	v, err := ctx.Eval(source, filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !v.IsUndefined() {
		fmt.Println(v.String())
	}
}

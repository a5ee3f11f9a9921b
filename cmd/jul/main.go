package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	juliaruntime "github.com/wippyai/julia-runtime"
	"github.com/wippyai/julia-runtime/engine"
	"github.com/wippyai/julia-runtime/runtime"
)

var (
	configPath string
	heapBudget int64
	noGC       bool
)

func main() {
	root := &cobra.Command{
		Use:   "jul",
		Short: "Embedded Julia-style interpreter",
		Long:  "jul evaluates programs on the embedded interpreter, either from files, from the command line, or interactively.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return replMain()
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML config file")
	root.PersistentFlags().Int64Var(&heapBudget, "heap-budget", 0, "Heap bytes between collections (0 = default)")
	root.PersistentFlags().BoolVar(&noGC, "no-gc", false, "Disable automatic collection")

	root.AddCommand(evalCmd(), runCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadOptions() (engine.Options, error) {
	opts := engine.DefaultOptions()
	if configPath != "" {
		loaded, err := engine.LoadOptions(configPath)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}
	if heapBudget > 0 {
		opts.HeapBudget = heapBudget
	}
	if noGC {
		opts.DisableGC = true
	}
	return opts, nil
}

func newRuntime() (*runtime.Runtime, error) {
	opts, err := loadOptions()
	if err != nil {
		return nil, err
	}
	rt, err := runtime.New(opts)
	if err != nil {
		return nil, err
	}
	if opts.DisableGC {
		rt.GC().Enable(false)
	}
	return rt, nil
}

func evalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <expr>",
		Short: "Evaluate an expression and print its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			v, err := rt.EvalString(args[0])
			if err != nil {
				return err
			}
			if !v.IsNothing() {
				fmt.Println(v.String())
			}
			v.Drop()
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Run a program file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			v, err := rt.LoadFile(args[0])
			if err != nil {
				return err
			}
			v.Drop()
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print binding and runtime versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			fmt.Println(juliaruntime.BindingVersion())
			fmt.Println(rt.Version())
			return nil
		},
	}
}

// Command purple runs the built-in sample programs. It exists to showcase
// the embedding API: tables are authored in samples.go exactly the way a
// host application would author them.
package main

import (
	"fmt"
	"os"

	"github.com/cloudcmds/purple/dis"
	"github.com/cloudcmds/purple/vm"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	red   = color.New(color.FgRed).SprintfFunc()
	green = color.New(color.FgGreen).SprintfFunc()
	faint = color.New(color.Faint).SprintfFunc()
)

// tracer prints one line per VM event.
type tracer struct {
	vm.NoOpObserver
}

func (tracer) OnStep(event vm.StepEvent) bool {
	fmt.Println(faint("step func(%d) ip=%-3d %s", event.Func, event.IP, event.OpcodeName))
	return true
}

func (tracer) OnCall(event vm.CallEvent) bool {
	fmt.Println(faint("call func(%d) -> func(%d) depth=%d", event.Caller, event.Callee, event.FrameDepth))
	return true
}

func (tracer) OnReturn(event vm.ReturnEvent) bool {
	how := "return"
	if event.FellThrough {
		how = "fall-through"
	}
	fmt.Println(faint("%s from func(%d) depth=%d", how, event.Func, event.FrameDepth))
	return true
}

func main() {
	var noColor bool
	var trace bool
	var verbose bool
	var n int

	rootCmd := &cobra.Command{
		Use:   "purple",
		Short: "Run purple VM sample programs",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the sample programs",
		Run: func(cmd *cobra.Command, args []string) {
			for _, s := range samples {
				fmt.Printf("%-10s %s\n", green("%s", s.name), s.description)
			}
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <sample>",
		Short: "Run a sample program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := findSample(args[0])
			if err != nil {
				return err
			}
			var opts []vm.Option[int, int]
			if trace {
				opts = append(opts, vm.WithObserver[int, int](tracer{}))
			}
			if verbose {
				logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
					Level(zerolog.TraceLevel).
					With().Timestamp().Logger()
				opts = append(opts, vm.WithLogger[int, int](logger))
			}
			env := 0
			result, err := vm.Run(cmd.Context(), s.build(n), &env, opts...)
			if err != nil {
				return err
			}
			if result == nil {
				fmt.Println("no result")
			} else {
				fmt.Println(green("%s", result.String()))
			}
			fmt.Printf("env: %d\n", env)
			return nil
		},
	}
	runCmd.Flags().BoolVar(&trace, "trace", false, "Trace execution events")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable engine trace logging")
	runCmd.Flags().IntVar(&n, "n", 5, "Input value for the sample")

	disCmd := &cobra.Command{
		Use:   "dis <sample>",
		Short: "Disassemble a sample program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := findSample(args[0])
			if err != nil {
				return err
			}
			dis.Print(dis.Disassemble(s.build(n)))
			return nil
		},
	}
	disCmd.Flags().IntVar(&n, "n", 5, "Input value for the sample")

	rootCmd.AddCommand(listCmd, runCmd, disCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("error: %s", err))
		os.Exit(1)
	}
}

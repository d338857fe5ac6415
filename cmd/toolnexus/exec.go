package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type execOptions struct {
	InputFile string
	Options   map[string]string
	Raw       bool
}

func newExecCmd(root *rootOptions) *cobra.Command {
	opts := &execOptions{}
	cmd := &cobra.Command{
		Use:   "exec <capability> <action> [input|-]",
		Short: "Execute one capability action through the pipeline",
		Long: `Execute one capability action through the full pipeline and print the
response as JSON. Input comes from the third argument, from --input-file, or
from stdin when the argument is "-".`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, root, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.InputFile, "input-file", "f", "", "Read input from a file")
	cmd.Flags().StringToStringVarP(&opts.Options, "option", "o", nil, "Execution option as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "Print only the output on success")
	return cmd
}

func runExec(cmd *cobra.Command, root *rootOptions, opts *execOptions, args []string) error {
	input, err := readInput(cmd.InOrStdin(), opts.InputFile, args[2:])
	if err != nil {
		return err
	}

	cfg, logger, err := root.setup(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			logger.Warn("shutdown error", "error", cerr)
		}
	}()

	resp, err := a.pipeline.Execute(ctx, args[0], args[1], input, opts.Options)
	if err != nil {
		return fmt.Errorf("execution aborted: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.Raw && resp.Success {
		_, err = fmt.Fprintln(out, resp.Output)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s: %s", resp.Code, resp.Error)
	}
	return nil
}

func readInput(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", fmt.Errorf("pass input either as an argument or with --input-file, not both")
	case file != "":
		//nolint:gosec // Input path is supplied by the operator
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read input file: %w", err)
		}
		return string(data), nil
	case len(args) > 0 && args[0] == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case len(args) > 0:
		return args[0], nil
	default:
		return "", nil
	}
}

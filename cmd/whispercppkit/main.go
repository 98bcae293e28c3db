package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/whispercppkit/whispercppkit/internal/cli"
	"github.com/whispercppkit/whispercppkit/internal/whisper"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitInit      = 3
	exitInference = 4
	exitDecode    = 5
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if shouldPrintUsageHint(err) {
			fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", helpHintTarget(cmd, os.Args[1:]))
		}
	}
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		usageErr     *cli.UsageError
		initErr      *whisper.InitError
		inferenceErr *whisper.InferenceError
		decodeErr    *whisper.AudioDecodeError
	)
	switch {
	case errors.As(err, &usageErr):
		return exitUsage
	case errors.As(err, &initErr):
		return exitInit
	case errors.As(err, &inferenceErr):
		return exitInference
	case errors.As(err, &decodeErr):
		return exitDecode
	case shouldPrintUsageHint(err):
		return exitUsage
	default:
		return exitFailure
	}
}

func shouldPrintUsageHint(err error) bool {
	if err == nil {
		return false
	}

	var usageErr *cli.UsageError
	if errors.As(err, &usageErr) {
		return true
	}

	message := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"accepts ",
		"requires at least",
		"requires at most",
		"requires between",
		"required flag",
		"missing required",
	}

	for _, pattern := range patterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}

	return false
}

func helpHintTarget(root *cobra.Command, args []string) string {
	if root == nil {
		return "whispercppkit"
	}

	target := root.CommandPath()
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return target
	}

	found, _, err := root.Find(args)
	if err == nil && found != nil {
		return found.CommandPath()
	}

	return target
}

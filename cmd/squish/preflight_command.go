package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"squish/internal/codec"
	"squish/internal/preflight"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check the environment a compression run depends on",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			std := codec.NewStdCodec()
			std.GIFColors = cfg.Compression.GIFColors

			results := preflight.Run(cfg, std)
			colorize := writerIsTerminal(cmd.OutOrStdout())
			out := cmd.OutOrStdout()
			for _, result := range results {
				fmt.Fprintln(out, renderCheckLine(result, colorize))
			}
			if !preflight.AllPassed(results) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}
}

func renderCheckLine(result preflight.Result, colorize bool) string {
	label := "OK"
	color := ansiGreen
	if !result.Passed {
		label = "FAIL"
		color = ansiRed
	}
	line := fmt.Sprintf("  %-24s [%s]", result.Name+":", label)
	if result.Detail != "" {
		line += " " + result.Detail
	}
	if colorize {
		return color + line + ansiReset
	}
	return line
}

func writerIsTerminal(w any) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

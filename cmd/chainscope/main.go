package main

import (
	"context"
	"fmt"
	"os"

	cliframework "github.com/urfave/cli/v3"

	"github.com/tobert/chainscope/internal/cli"
)

const version = "0.1.0-dev"

func main() {
	app := &cliframework.Command{
		Name:    "chainscope",
		Usage:   "Critical request chain analysis of Lighthouse reports, over MCP",
		Version: version,
		Commands: []*cliframework.Command{
			cli.ServeCommand(),
			cli.AnalyzeCommand(),
			cli.DoctorCommand(version),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}

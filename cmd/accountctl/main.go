package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/accountkeeper/internal/cli"
	"github.com/dmitrijs2005/accountkeeper/internal/server"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cmd, opts, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	app, err := server.NewApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	return cli.NewRunner(app.Accounts(), os.Stdin, os.Stdout).Run(ctx, cmd, opts)
}

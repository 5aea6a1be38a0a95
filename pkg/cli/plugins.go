package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/service/plugin"
)

func cmdPlugins() *cli.Command {
	return &cli.Command{
		Name:  "plugins",
		Usage: "Inspect the installed plugins",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the plugins available to plugin instances",
				Action: func(ctx context.Context, c *cli.Command) error {
					printPlugins(os.Stdout, plugin.New(nil).Plugins())
					return nil
				},
			},
		},
	}
}

func printPlugins(w io.Writer, plugins []plugin.Plugin) {
	typ := color.New(color.FgCyan).SprintFunc()
	slug := color.New(color.Bold).SprintFunc()
	for _, p := range plugins {
		_, _ = fmt.Fprintf(w, "%-22s %-32s %s\n", typ(p.Type), slug(p.Slug), p.Description)
	}
}

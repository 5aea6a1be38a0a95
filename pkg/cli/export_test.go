package cli

import (
	"context"
	"io"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/service/plugin"
)

func RunShellForTest(ctx context.Context, repo interfaces.Repository, org string, in io.Reader, out io.Writer) error {
	return newShell(repo, org, out).run(ctx, in)
}

func PrintPluginsForTest(w io.Writer, plugins []plugin.Plugin) {
	printPlugins(w, plugins)
}

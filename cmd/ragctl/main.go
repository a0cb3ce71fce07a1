// Command ragctl runs ingestion, questions and cleanup against a tenant's
// documents without going through the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"docqa/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root, closeFn := newRootCmd(afero.NewOsFs(), openService)
	err := root.ExecuteContext(ctx)
	closeFn()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func openService(ctx context.Context) (service, func(), error) {
	app, err := bootstrap.New(ctx, bootstrap.Options{})
	if err != nil {
		return nil, nil, err
	}
	return app.RAG, func() { _ = app.Close() }, nil
}

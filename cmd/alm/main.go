// Command alm drives the solution lifecycle pipelines: export from the
// development environment, build artifacts, and deploy to a target.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handleInterrupt(cancel)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("pipeline failed")
		os.Exit(1)
	}
}

func handleInterrupt(cancel context.CancelFunc) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-c
		cancel()
	}()
}

func newRootCmd() *cobra.Command {
	var configPaths []string

	cmd := &cobra.Command{
		Use:           "alm",
		Short:         "Dataverse solution lifecycle automation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", []string{"alm.yaml"},
		"config layer files, merged in order")

	cmd.AddCommand(
		newCmdExport(&configPaths),
		newCmdBuild(&configPaths),
		newCmdDeploy(&configPaths),
		newCmdImport(&configPaths),
	)
	return cmd
}

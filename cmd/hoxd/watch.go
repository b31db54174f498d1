package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hoxforge/hox/internal/oplog"
	"github.com/hoxforge/hox/internal/reconcile"
	"github.com/hoxforge/hox/internal/vcs"
	"github.com/hoxforge/hox/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "daemon",
	Short:   "Run the reconciler, keeping the query cache in sync with tasks/ and deps/",
	Long: `watch starts the filesystem watcher and, when the repository is backed by a
DVCS the op-log watcher recognizes, the op-log watcher, and feeds both into
the reconciler until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	v, err := vcs.GetForPath(rootDir)
	if err != nil {
		v = nil // still watch the filesystem even without a recognized DVCS
	}

	c, err := loadCache(rootDir)
	if err != nil {
		return err
	}

	fw, err := watch.New(tasksDir(rootDir), depsDir(rootDir))
	if err != nil {
		return err
	}

	var ow *oplog.Watcher
	if v != nil {
		ow = oplog.New(v)
	}

	cfg := reconcile.DefaultConfig()
	cfg.Logger = newLogger("[reconcile] ")
	cfg.MetadataDir = rootDir + "/.tasks"
	r := reconcile.New(c, tasksDir(rootDir), depsDir(rootDir), v, fw, ow, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.Start(ctx); err != nil {
		return err
	}
	defer r.Stop()

	fmt.Fprintf(os.Stdout, "watching %s (%d tasks loaded)\n", rootDir, c.Len())
	<-ctx.Done()
	fmt.Fprintln(os.Stdout, "shutting down")
	return nil
}

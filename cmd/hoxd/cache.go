package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hoxforge/hox/internal/cache"
	"github.com/hoxforge/hox/internal/vcs"
)

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "daemon",
	Short:   "Inspect the in-memory query cache",
}

var cacheVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Cross-check the rescanned cache against the DVCS directly",
	RunE:  runCacheVerify,
}

func init() {
	cacheVerifyCmd.Flags().String("revset", "", "also list change ids matching this revset (jj revset or git revision range)")

	cacheCmd.AddCommand(cacheVerifyCmd)
	rootCmd.AddCommand(cacheCmd)
}

// runCacheVerify rebuilds the cache from tasks/deps files (the same full
// rescan internal/reconcile performs at startup) and then independently
// asks the VCS whether each cached task's tasks/{id}.json file is still
// tracked (dependency files are not checked),
// surfacing any mismatch. Files are the source of truth (spec §9); this is
// a diagnostic for operators who suspect the cache and the DAG have
// drifted, not a second write path.
func runCacheVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	v, _, err := openRepo(rootDir)
	if err != nil {
		return err
	}
	c, err := loadCache(rootDir)
	if err != nil {
		return err
	}

	mismatches := 0
	for _, t := range c.List(cache.Filter{}) {
		path := tasksDir(rootDir) + "/" + t.ID + ".json"
		tracked, err := v.IsTracked(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warn: IsTracked(%s): %v\n", path, err)
			continue
		}
		if !tracked {
			mismatches++
			fmt.Fprintf(os.Stdout, "mismatch: task %s is in the cache but %s is untracked by %s\n", t.ID, path, v.Name())
		}
	}

	if revset, _ := cmd.Flags().GetString("revset"); revset != "" {
		ids, err := vcs.RevsetQuery(ctx, v, revset)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "revset %q matched %d change(s):\n", revset, len(ids))
		for _, id := range ids {
			fmt.Fprintf(os.Stdout, "  %s\n", id)
		}
	}

	fmt.Fprintf(os.Stdout, "%d task(s) checked, %d mismatch(es)\n", c.Len(), mismatches)
	return nil
}

package vcs

import "context"

// RevsetQuery evaluates revset against the change DAG directly and returns
// the matching change/commit ids, newest first. It exists as a diagnostic
// escape hatch for operators who want to sanity-check internal/cache's view
// against the DAG itself rather than trust the file-derived cache blindly —
// the cache is rebuilt from tasks/deps files (see internal/reconcile), and
// this gives a second, independent way to ask the same question of the VCS.
//
// jj and git use different query languages (jj revsets vs. git revision
// ranges); RevsetQuery accepts whichever syntax the backend in use expects
// and dispatches on v.Name().
func RevsetQuery(ctx context.Context, v VCS, revset string) ([]string, error) {
	if err := ValidateRevset(revset); err != nil {
		return nil, err
	}

	switch v.Name() {
	case TypeJJ, TypeColocate:
		out, err := v.Exec(ctx, "log", "-r", revset, "--no-graph", "-T", `change_id ++ "\n"`)
		if err != nil {
			return nil, err
		}
		return ParseLines(out), nil
	default:
		out, err := v.Exec(ctx, "log", "--format=%H", revset)
		if err != nil {
			return nil, err
		}
		return ParseLines(out), nil
	}
}

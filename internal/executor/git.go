package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/buildflow/internal/config"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

// GitBuild executes a job by syncing the repository named in the job's
// "repo" parameter into the workspace, optionally checking out the "ref"
// parameter, then running the configured build command inside the checkout.
type GitBuild struct {
	workspaceRoot string
	registryURL   string
	argv          []string // optional build command run inside the checkout
}

// NewGitBuild builds a GitBuild executor from configuration.
func NewGitBuild(cfg config.ExecutorConfig) (*GitBuild, error) {
	if cfg.WorkspaceRoot == "" {
		return nil, fmt.Errorf("git executor requires executor.workspace_root")
	}
	return &GitBuild{
		workspaceRoot: cfg.WorkspaceRoot,
		registryURL:   cfg.RegistryURL,
		argv:          cfg.Command,
	}, nil
}

// Execute syncs and builds one job.
func (g *GitBuild) Execute(ctx context.Context, job orchestrator.Job) error {
	repoURL := job.Params["repo"]
	if repoURL == "" {
		return fmt.Errorf("job %s: missing required param %q", job.Key, "repo")
	}
	dir := filepath.Join(g.workspaceRoot, job.Key)

	if err := g.sync(ctx, dir, repoURL, job.Params["ref"]); err != nil {
		return fmt.Errorf("job %s: sync %s: %w", job.Key, repoURL, err)
	}
	if len(g.argv) == 0 {
		return nil
	}

	argv := expandArgv(g.argv, job)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = jobEnv(job, g.registryURL, dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("job %s: build failed: %w: %s", job.Key, err, tail(out, 512))
	}
	return nil
}

// sync clones the repository on first use and pulls on subsequent runs.
func (g *GitBuild) sync(ctx context.Context, dir, repoURL, ref string) error {
	repo, err := git.PlainOpen(dir)
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		cloneOptions := &git.CloneOptions{URL: repoURL}
		if ref != "" {
			cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(ref)
			cloneOptions.SingleBranch = true
		}
		slog.Info("Cloning repository", logfields.Path(dir), slog.String("url", repoURL))
		_, err = git.PlainCloneContext(ctx, dir, false, cloneOptions)
		return err
	case err != nil:
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	if ref != "" {
		checkout := &git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(ref)}
		if err := worktree.Checkout(checkout); err != nil {
			return fmt.Errorf("checkout %s: %w", ref, err)
		}
	}
	err = worktree.PullContext(ctx, &git.PullOptions{})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/5dlabs/taskmaster-sync/internal/agents"
	"github.com/5dlabs/taskmaster-sync/internal/config"
	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/github"
	"github.com/5dlabs/taskmaster-sync/internal/syncconfig"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// taskmasterDir walks up from the working directory to find the .taskmaster
// directory, so commands work from anywhere inside the project.
func taskmasterDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ".taskmaster")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if dir == filepath.Dir(dir) {
			return "", fmt.Errorf("%w: no .taskmaster directory found above %s", types.ErrConfig, cwd)
		}
	}
}

// tasksFilePath returns the task file location inside the taskmaster dir.
func tasksFilePath(dir string) string {
	return filepath.Join(dir, "tasks", "tasks.json")
}

// agentsFilePath returns the agent rule-set location.
func agentsFilePath(dir string) string {
	return filepath.Join(dir, "agents.yaml")
}

// newClient builds the remote client from ambient settings.
func newClient() *github.Client {
	return github.NewClient(github.Options{
		Concurrency:    config.GetInt("concurrency"),
		RequestTimeout: config.GetDuration("request-timeout"),
	})
}

// loadResolver loads the agent rule set; a missing file is fine.
func loadResolver(dir string) (*agents.Resolver, error) {
	return agents.Load(agentsFilePath(dir))
}

// parseBoardRef interprets a board reference: a project number, or 0 to
// auto-create a new board.
func parseBoardRef(ref string) (int, error) {
	n, err := strconv.Atoi(ref)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: board reference %q is not a project number", types.ErrConfig, ref)
	}
	return n, nil
}

// detectRepository finds the repository this project lives in, preferring
// the CI environment over the git remote. Empty when neither is available.
func detectRepository() string {
	if repo := os.Getenv("GITHUB_REPOSITORY"); repo != "" {
		debug.Logf("repository from GITHUB_REPOSITORY: %s", repo)
		return repo
	}
	out, err := exec.Command("git", "config", "--get", "remote.origin.url").Output()
	if err != nil {
		return ""
	}
	repo := parseGitHubURL(strings.TrimSpace(string(out)))
	if repo != "" {
		debug.Logf("repository from git remote: %s", repo)
	}
	return repo
}

// parseGitHubURL extracts owner/name from ssh or https remote URLs.
func parseGitHubURL(url string) string {
	if rest, ok := strings.CutPrefix(url, "git@github.com:"); ok {
		return strings.TrimSuffix(rest, ".git")
	}
	if _, rest, ok := strings.Cut(url, "github.com/"); ok {
		return strings.TrimSuffix(rest, ".git")
	}
	return ""
}

// boardTitle names an auto-created board after the repository and tag.
func boardTitle(repository, tag string) string {
	if repository != "" {
		name := repository
		if i := strings.LastIndex(repository, "/"); i >= 0 {
			name = repository[i+1:]
		}
		return fmt.Sprintf("TaskMaster - %s (%s)", name, tag)
	}
	return fmt.Sprintf("TaskMaster Project - %s", tag)
}

// loadSyncConfig reads sync-config.json. It does not check the organization;
// requireOrganization does.
func loadSyncConfig(dir string) (*syncconfig.Config, error) {
	cfg, err := syncconfig.Load(syncconfig.PathIn(dir))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// requireOrganization returns the configured owner or a config error.
func requireOrganization(cfg *syncconfig.Config) (string, error) {
	if cfg.Organization == "" {
		return "", fmt.Errorf("%w: organization is not set in %s", types.ErrConfig, syncconfig.FileName)
	}
	return cfg.Organization, nil
}

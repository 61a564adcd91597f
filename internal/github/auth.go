package github

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/5dlabs/taskmaster-sync/internal/debug"
	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// TokenProvider yields a bearer token on demand. Invalidate drops any cached
// token so the next Token call refreshes it.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// CLITokenProvider obtains tokens from the gh CLI so no credential is ever
// stored by this tool. The token is cached in memory until a request is
// rejected, at which point it is refreshed once.
type CLITokenProvider struct {
	mu    sync.Mutex
	token string
}

// NewCLITokenProvider returns a provider backed by `gh auth token`.
func NewCLITokenProvider() *CLITokenProvider {
	return &CLITokenProvider{}
}

// Token returns the cached token, invoking the helper if none is cached.
func (p *CLITokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		return p.token, nil
	}

	cmd := exec.CommandContext(ctx, "gh", "auth", "token")
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(errOut.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%w: gh auth token: %s (run 'gh auth login')", types.ErrAuth, msg)
	}

	token := strings.TrimSpace(out.String())
	if token == "" {
		return "", fmt.Errorf("%w: gh auth token returned no token", types.ErrAuth)
	}
	debug.Logf("obtained token from gh helper")
	p.token = token
	return token, nil
}

// Invalidate discards the cached token.
func (p *CLITokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

// StaticTokenProvider serves a fixed token. Used in tests.
type StaticTokenProvider string

func (p StaticTokenProvider) Token(context.Context) (string, error) { return string(p), nil }

func (p StaticTokenProvider) Invalidate() {}

// Package registry builds and holds the configured provider clients.
package registry

import (
	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/provider"
	"github.com/reviewloop/reviewloop/internal/provider/github"
	"github.com/reviewloop/reviewloop/internal/provider/gitlab"
)

// Registry manages provider client instances.
type Registry struct {
	clients map[string]provider.Client
}

// New creates a provider registry from config. A provider is configured
// when its token is set.
func New(cfg *config.Config) *Registry {
	r := &Registry{
		clients: make(map[string]provider.Client),
	}

	if cfg.Providers.GitHub.Token != "" {
		var opts []github.Option
		if cfg.Providers.GitHub.APIURL != "" {
			opts = append(opts, github.WithBaseURL(cfg.Providers.GitHub.APIURL))
		}
		r.clients["github"] = github.New(cfg.Providers.GitHub.Token, opts...)
	}

	if cfg.Providers.GitLab.Token != "" {
		var opts []gitlab.Option
		if cfg.Providers.GitLab.BaseURL != "" {
			opts = append(opts, gitlab.WithBaseURL(cfg.Providers.GitLab.BaseURL))
		}
		r.clients["gitlab"] = gitlab.New(cfg.Providers.GitLab.Token, opts...)
	}

	return r
}

// Get returns the client for the given provider name, or nil if not
// configured.
func (r *Registry) Get(name string) provider.Client {
	return r.clients[name]
}

// List returns all configured provider names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

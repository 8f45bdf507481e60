package memcore

import (
	"log/slog"

	"github.com/4thel00z/memcore/annotate"
	"github.com/4thel00z/memcore/embedding"
	"github.com/4thel00z/memcore/store"
)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	gateway   embedding.Gateway
	annotator *annotate.Service
	logger    *slog.Logger
	snapshots bool
	storeOpts []store.Option
}

// WithGateway sets the embedding gateway. Without one, records are stored
// unembedded and SIMILAR TO queries fail.
func WithGateway(gw embedding.Gateway) Option {
	return func(c *engineConfig) {
		c.gateway = gw
	}
}

// WithAnnotator enables LLM summaries and tag suggestions.
func WithAnnotator(svc *annotate.Service) Option {
	return func(c *engineConfig) {
		c.annotator = svc
	}
}

// WithLogger sets the engine logger, also passed down to the store.
func WithLogger(log *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = log
	}
}

// WithSnapshots versions the store directory with an embedded git
// repository. Only available when the engine is opened on an OS path.
func WithSnapshots() Option {
	return func(c *engineConfig) {
		c.snapshots = true
	}
}

// WithStoreOptions forwards options to the underlying store, such as
// store.WithPassphrase or store.WithDimension.
func WithStoreOptions(opts ...store.Option) Option {
	return func(c *engineConfig) {
		c.storeOpts = append(c.storeOpts, opts...)
	}
}

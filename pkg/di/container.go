package di

import (
	"context"
	"io"
	"log/slog"

	"github.com/goliatone/go-blog-cache/blog"
	"github.com/goliatone/go-blog-cache/cache"
	"github.com/goliatone/go-blog-cache/querycache"
	"github.com/goliatone/go-blog-cache/transport"
)

// Container wires the blog client: the payload store, the query cache, the
// backend transport and the posts service. One container is one
// independent cache; nothing is shared between containers.
type Container struct {
	config        Config
	logger        *slog.Logger
	keySerializer cache.KeySerializer

	payloads  cache.PayloadStore
	cache     *querycache.Client
	transport *transport.Client
	posts     *blog.Service
}

// Option configures a Container.
type Option func(*containerOptions)

type containerOptions struct {
	logger        *slog.Logger
	logOutput     io.Writer
	transportOpts []transport.Option
}

// WithLogger uses logger instead of one built from Config.Log.
func WithLogger(logger *slog.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithLogOutput sets where the logger built from Config.Log writes.
// Default: io.Discard.
func WithLogOutput(w io.Writer) Option {
	return func(o *containerOptions) {
		o.logOutput = w
	}
}

// WithTransportOption passes opt to the backend transport.
func WithTransportOption(opt transport.Option) Option {
	return func(o *containerOptions) {
		o.transportOpts = append(o.transportOpts, opt)
	}
}

// NewContainer validates cfg and builds every component.
func NewContainer(cfg Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := containerOptions{logOutput: io.Discard}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = NewLogger(cfg.Log, o.logOutput)
	}

	payloads, err := cache.NewPayloadStore(cfg.Cache)
	if err != nil {
		return nil, err
	}

	keySerializer := cache.NewDefaultKeySerializer()
	qc, err := querycache.New(payloads, cfg.Cache,
		querycache.WithLogger(logger.With("component", "querycache")),
		querycache.WithKeySerializer(keySerializer),
	)
	if err != nil {
		return nil, err
	}

	topts := append([]transport.Option{transport.WithLogger(logger.With("component", "transport"))}, o.transportOpts...)
	api, err := transport.New(cfg.Backend, topts...)
	if err != nil {
		return nil, err
	}

	logger.Debug("container ready", "backend", api.BaseURL(), "max_age", cfg.Cache.MaxAge)

	return &Container{
		config:        cfg,
		logger:        logger,
		keySerializer: keySerializer,
		payloads:      payloads,
		cache:         qc,
		transport:     api,
		posts:         blog.NewService(qc, api, blog.WithLogger(logger.With("component", "blog"))),
	}, nil
}

// NewContainerWithDefaults builds a container from DefaultConfig.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(DefaultConfig(), opts...)
}

// Posts returns the posts service.
func (c *Container) Posts() *blog.Service {
	return c.posts
}

// NewEditSession returns a fresh Idle edit session on the posts service.
func (c *Container) NewEditSession() *blog.EditSession {
	return c.posts.NewEditSession()
}

// Cache returns the query cache.
func (c *Container) Cache() *querycache.Client {
	return c.cache
}

// Payloads returns the payload store behind the cache.
func (c *Container) Payloads() cache.PayloadStore {
	return c.payloads
}

// Transport returns the backend client.
func (c *Container) Transport() *transport.Client {
	return c.transport
}

// KeySerializer returns the key serializer shared by every query.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Logger returns the root logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// Config returns the configuration the container was built from.
func (c *Container) Config() Config {
	return c.config
}

// Run runs the cache sweeper until ctx is cancelled.
func (c *Container) Run(ctx context.Context) {
	c.logger.Info("cache sweeper started",
		"keep_unused_for", c.config.Cache.KeepUnusedFor,
		"sweep_interval", c.config.Cache.SweepInterval)
	c.cache.Run(ctx)
	c.logger.Info("cache sweeper stopped")
}

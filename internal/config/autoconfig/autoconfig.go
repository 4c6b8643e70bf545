// autoconfig provides a way to create the block tooling instances like
// [editor.Editor], [identity.Maintainer], [zap.Logger] from the [config.Config].
//
// For example, to instantiate [editor.Editor], you can write:
//
//	autoconfig.NewBuilder().Invoke(func(e *editor.Editor) error {
//	    ...
//	})
//
// Treat it as a dependency injection mechanism.
package autoconfig

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/stateful/blocks/internal/config"
	"github.com/stateful/blocks/internal/log"
	"github.com/stateful/blocks/internal/ulid"
	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/editor"
	"github.com/stateful/blocks/pkg/element"
	"github.com/stateful/blocks/pkg/identity"
	"github.com/stateful/blocks/pkg/schema"
)

// ConfigName is the name of configuration files, without extension.
const ConfigName = "blocks"

// ResolverGroup collects the resolvers handed to the editor.
const ResolverGroup = "resolvers"

type Builder struct {
	container *dig.Container
}

func NewBuilder() *Builder {
	c := dig.New()

	mustProvide(c.Provide(getLoader))
	mustProvide(c.Provide(getConfig))
	mustProvide(c.Provide(getLogger))
	mustProvide(c.Provide(getGenerator))
	mustProvide(c.Provide(getStore))
	mustProvide(c.Provide(getRegistry))
	mustProvide(c.Provide(getSchemas))
	mustProvide(c.Provide(getEditor))
	mustProvide(c.Provide(getMaintainer))

	return &Builder{container: c}
}

func mustProvide(err error) {
	if err != nil {
		panic("failed to provide: " + err.Error())
	}
}

// Provide adds a constructor, for example a resolver:
//
//	b.Provide(func() editor.Resolver { ... }, dig.Group(autoconfig.ResolverGroup))
func (b *Builder) Provide(constructor interface{}, opts ...dig.ProvideOption) error {
	return errors.WithStack(b.container.Provide(constructor, opts...))
}

// Decorate replaces a provided value, for example the [config.Loader] in tests.
func (b *Builder) Decorate(decorator interface{}, opts ...dig.DecorateOption) error {
	return errors.WithStack(b.container.Decorate(decorator, opts...))
}

// Invoke is used to invoke the function with the given dependencies.
// The builder will automatically figure out how to instantiate them
// using the available configuration.
func (b *Builder) Invoke(function interface{}, opts ...dig.InvokeOption) error {
	err := b.container.Invoke(function, opts...)
	return dig.RootCause(err)
}

func getLoader() (*config.Loader, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return config.NewLoader(ConfigName, os.DirFS(cwd)), nil
}

func getConfig(loader *config.Loader) (*config.Config, error) {
	return loader.Load("")
}

func getLogger(c *config.Config) (*zap.Logger, error) {
	logger, err := log.New(c.Log)
	if err != nil {
		return nil, err
	}
	log.Set(logger)
	return logger, nil
}

func getGenerator(c *config.Config) (ulid.Generator, error) {
	return c.Generator()
}

func getStore(gen ulid.Generator, logger *zap.Logger) *block.Store {
	return block.NewStore(
		block.WithGenerator(gen),
		block.WithLogger(logger.Named("store")),
	)
}

func getRegistry(c *config.Config) (*element.Registry, error) {
	r, err := c.Registry()
	return r, errors.Wrap(err, "invalid elements")
}

func getSchemas(r *element.Registry, store *block.Store, logger *zap.Logger) (*schema.Set, error) {
	set, err := schema.Build(r, schema.WithLogger(logger.Named("schema")), schema.WithStore(store))
	return set, errors.Wrap(err, "invalid elements")
}

type editorParams struct {
	dig.In

	Config    *config.Config
	Registry  *element.Registry
	Schemas   *schema.Set
	Store     *block.Store
	Logger    *zap.Logger
	Resolvers []editor.Resolver `group:"resolvers"`
	Host      editor.Host       `optional:"true"`
}

func getEditor(p editorParams) *editor.Editor {
	opts := []editor.Option{
		editor.WithLogger(p.Logger.Named("editor")),
		editor.WithCacheSize(p.Config.Resolver.CacheSize),
		editor.WithConcurrency(p.Config.Resolver.Concurrency),
		editor.WithResolvers(p.Resolvers...),
	}
	if p.Host != nil {
		opts = append(opts, editor.WithHost(p.Host))
	}
	return editor.New(p.Registry, p.Schemas, p.Store, opts...)
}

func getMaintainer(c *config.Config, r *element.Registry, store *block.Store, e *editor.Editor, logger *zap.Logger) *identity.Maintainer {
	return identity.New(
		r,
		store,
		identity.WithLogger(logger.Named("identity")),
		identity.WithMaxIterations(c.Identity.MaxIterations),
		identity.WithSweeper(e),
	)
}

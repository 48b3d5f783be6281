package configuration

import (
	"go.uber.org/zap"

	"github.com/Giorgiberuashvil92/carappX-sub005/internal/history"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/lastviewed"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/model"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/registry"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/socket"
	"github.com/Giorgiberuashvil92/carappX-sub005/internal/typing"
)

// Container assembles the synchronization core for one process. Screens talk
// to the Registry, the typing Coordinator, and the last-viewed store; the
// transport and history loader stay internal.
type Container struct {
	Registry   *registry.Registry
	Typing     *typing.Coordinator
	Offers     *history.OffersClient
	LastViewed *lastviewed.Store
	Config     Config
	Logger     *zap.Logger
}

// BuildContainer wires the stack. self is the party this process acts as.
func BuildContainer(configPath string, self model.Party) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	lv, err := lastviewed.Open(config.Device.DBPath)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	adapter := socket.NewAdapter(config.Socket.URL, logger)
	loader := history.NewLoader(config.API.BaseURL, logger)

	return &Container{
		Registry:   registry.New(adapter, loader, self, logger),
		Typing:     typing.NewCoordinator(adapter, self, logger),
		Offers:     history.NewOffersClient(config.API.BaseURL, logger),
		LastViewed: lv,
		Config:     *config,
		Logger:     logger,
	}, nil
}

// Close tears the core down: all threads, the transport, the device store.
func (c *Container) Close() error {
	if c.Typing != nil {
		c.Typing.Close()
	}
	if c.Registry != nil {
		c.Registry.Close()
	}
	var err error
	if c.LastViewed != nil {
		err = c.LastViewed.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return err
}

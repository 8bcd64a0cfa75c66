package main

import (
	"context"
	"io"
	"net/http"

	"github.com/im7mortal/kmutex"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/example/book-bazaar/internal/adapter/amqpbus"
	"github.com/example/book-bazaar/internal/adapter/cache"
	"github.com/example/book-bazaar/internal/adapter/httpapi"
	"github.com/example/book-bazaar/internal/adapter/natsstan"
	"github.com/example/book-bazaar/internal/adapter/replica"
	"github.com/example/book-bazaar/internal/adapter/repo"
	"github.com/example/book-bazaar/internal/config"
	"github.com/example/book-bazaar/internal/domain"
	"github.com/example/book-bazaar/internal/usecase"
)

// App is the wired front service.
type App struct {
	Handler http.Handler
	Catalog *replica.Set[domain.CatalogConn]
	Orders  *replica.Set[domain.OrderConn]
	Events  domain.EventPublisher

	subscriber domain.MessageSubscriber
	onEvent    usecase.ApplyCatalogEvent
	closers    []func() error
}

func buildApp(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if a.Catalog, err = openCatalog(ctx, cfg.CatalogReplicas); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Catalog.Close)
	if a.Orders, err = openOrders(ctx, cfg.OrderReplicas); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Orders.Close)

	if err := ensureSchemas(ctx, a.Catalog.Members(), a.Orders.Members()); err != nil {
		return nil, err
	}

	var c domain.Cache[[]domain.Book]
	switch cfg.CacheBackend {
	case config.CacheRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, rdb.Close)
		c = cache.NewRedis[[]domain.Book](rdb, "bazaar:")
	default:
		c = cache.NewMemory[[]domain.Book](cfg.CacheSize, cfg.CacheTTL)
	}
	inv := usecase.NewInvalidator(c)

	if err := a.connectEvents(cfg); err != nil {
		return nil, err
	}
	a.onEvent = usecase.ApplyCatalogEvent{Invalidator: inv}

	locks := kmutex.New()
	a.Handler = httpapi.NewServer(
		&usecase.QueryService{
			Catalog:     a.Catalog,
			Cache:       c,
			Invalidator: inv,
			TTL:         cfg.CacheTTL,
			Timeout:     cfg.StoreTimeout,
		},
		usecase.PurchaseBook{
			Catalog:     a.Catalog,
			Orders:      a.Orders,
			Invalidator: inv,
			Publisher:   a.Events,
			Locks:       locks,
			Timeout:     cfg.StoreTimeout,
		},
		usecase.ModifyBook{
			Catalog:     a.Catalog,
			Invalidator: inv,
			Publisher:   a.Events,
			Locks:       locks,
			Timeout:     cfg.StoreTimeout,
		},
	).Router
	ok = true
	return a, nil
}

func (a *App) connectEvents(cfg config.Config) error {
	switch cfg.EventsDriver {
	case config.EventsStan:
		nc := natsstan.Config{ClusterID: cfg.StanClusterID, ClientID: cfg.StanClientID, URL: cfg.NatsURL, Subject: cfg.StanSubject}
		sc, err := natsstan.Connect(nc)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, sc.Close)
		a.Events = natsstan.NewPublisher(sc, cfg.StanSubject)
		a.subscriber = &natsstan.Subscriber{Conn: sc, Subject: cfg.StanSubject}
	case config.EventsAMQP:
		conn, ch, err := amqpbus.Setup(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, conn.Close)
		a.Events = amqpbus.NewPublisher(ch, cfg.AMQPExchange)
		a.subscriber = &amqpbus.Subscriber{Ch: ch, Exchange: cfg.AMQPExchange}
	}
	return nil
}

// Listen starts delivering catalog events into the local cache. It is a
// no-op without an event driver.
func (a *App) Listen(ctx context.Context) error {
	if a.subscriber == nil {
		return nil
	}
	return a.subscriber.Subscribe(ctx, a.onEvent.Execute)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}
	a.closers = nil
}

func openCatalog(ctx context.Context, addrs []string) (*replica.Set[domain.CatalogConn], error) {
	members := make([]replica.Member[domain.CatalogConn], 0, len(addrs))
	for _, addr := range addrs {
		m, err := repo.OpenCatalog(ctx, addr)
		if err != nil {
			closeMembers(members)
			return nil, errors.Wrap(err, "catalog replica")
		}
		members = append(members, m)
	}
	return replica.NewSet("catalog", members...)
}

func openOrders(ctx context.Context, addrs []string) (*replica.Set[domain.OrderConn], error) {
	members := make([]replica.Member[domain.OrderConn], 0, len(addrs))
	for _, addr := range addrs {
		m, err := repo.OpenOrders(ctx, addr)
		if err != nil {
			closeMembers(members)
			return nil, errors.Wrap(err, "order replica")
		}
		members = append(members, m)
	}
	return replica.NewSet("order", members...)
}

func closeMembers[M any](members []M) {
	for _, m := range members {
		if c, ok := any(m).(io.Closer); ok {
			_ = c.Close()
		}
	}
}

// ensureSchemas creates missing tables on every replica that supports it.
func ensureSchemas(ctx context.Context, catalogs []replica.Member[domain.CatalogConn], orders []replica.Member[domain.OrderConn]) error {
	g, ctx := errgroup.WithContext(ctx)
	ensure := func(addr string, m any) {
		s, ok := m.(repo.SchemaEnsurer)
		if !ok {
			return
		}
		g.Go(func() error {
			return errors.Wrapf(s.EnsureSchema(ctx), "ensure schema on %s", addr)
		})
	}
	for _, m := range catalogs {
		ensure(m.Addr(), m)
	}
	for _, m := range orders {
		ensure(m.Addr(), m)
	}
	return g.Wait()
}

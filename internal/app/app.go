// Package app wires the cache, the REST client and the mutation engine into
// one explicitly owned object graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/colthorp/nutrisync-cli-go/internal/api"
	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/config"
	"github.com/colthorp/nutrisync-cli-go/internal/conversation"
	"github.com/colthorp/nutrisync-cli-go/internal/credentials"
	"github.com/colthorp/nutrisync-cli-go/internal/dashboard"
	"github.com/colthorp/nutrisync-cli-go/internal/health"
	"github.com/colthorp/nutrisync-cli-go/internal/keys"
	"github.com/colthorp/nutrisync-cli-go/internal/optimistic"
)

// App holds every long-lived component. Nothing here is global.
type App struct {
	Config      *config.Config
	Credentials credentials.Store
	Client      *api.Client
	API         *api.HealthAPI
	Cache       *cache.Cache
	Coordinator *optimistic.Coordinator
	Health      *health.Service
	Chat        *conversation.Sync
	Dashboard   *dashboard.Router

	log     zerolog.Logger
	closers []io.Closer
}

// Options tune construction; the zero value builds the production graph.
type Options struct {
	// Credentials replaces the store selected by the config.
	Credentials credentials.Store
	// HTTPClient replaces the default HTTP client.
	HTTPClient *http.Client
	// Now overrides the clock of every component.
	Now func() time.Time
	// RetryBackoff sets the first GET retry delay.
	RetryBackoff time.Duration
}

// New builds the application from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &App{
		Config: cfg,
		log:    log.Logger.With().Str("component", "app").Logger(),
	}

	if err := a.initCredentials(opts.Credentials); err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	a.initClient(opts)
	a.initEngine(opts.Now)

	a.log.Debug().
		Str("baseURL", a.Client.BaseURL()).
		Str("credentials", cfg.Credentials.Backend).
		Str("timezone", cfg.Location().String()).
		Msg("application initialized")
	return a, nil
}

func (a *App) initCredentials(override credentials.Store) error {
	if override != nil {
		a.Credentials = credentials.WithEnv(override)
		return nil
	}
	store, err := credentials.Open(a.Config.Credentials.Backend, a.Config.Credentials.Path)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.Credentials = credentials.WithEnv(store)
	return nil
}

func (a *App) initClient(opts Options) {
	clientOpts := []api.ClientOption{
		api.WithRetries(a.Config.API.MaxRetries, opts.RetryBackoff),
		api.WithClientLogger(log.Logger.With().Str("component", "api").Logger()),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	if a.Config.API.Timeout > 0 {
		clientOpts = append(clientOpts, api.WithTimeout(a.Config.API.Timeout))
	}
	a.Client = api.NewClient(a.Config.API.BaseURL, a.Credentials, clientOpts...)
	a.API = api.NewHealthAPI(a.Client)
}

func (a *App) initEngine(now func() time.Time) {
	cfg := a.Config
	a.Cache = cache.New(
		cache.WithLoader(Loader(a.API)),
		cache.WithStaleTime(cfg.Staleness.StaleTime),
		cache.WithClock(now),
	)
	a.Coordinator = optimistic.NewCoordinator(a.Cache)
	a.Health = health.NewService(a.API, a.Coordinator,
		health.WithWeightKg(cfg.Profile.WeightKg),
		health.WithClock(now),
	)
	a.Chat = conversation.New(a.API, a.Coordinator, conversation.WithClock(now))

	created, _ := cfg.AccountCreated()
	a.Dashboard = dashboard.New(a.Cache,
		dashboard.WithLocation(cfg.Location()),
		dashboard.WithClock(now),
		dashboard.WithAccountCreated(created),
		dashboard.WithMaxFutureDays(cfg.Dashboard.MaxFutureDays),
	)
}

// Close waits for background loads and in-flight mutations, then releases
// the credential store.
func (a *App) Close() error {
	a.Coordinator.Wait()
	a.Cache.Wait()
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Loader resolves catalogue keys against the REST backend.
func Loader(h *api.HealthAPI) cache.Loader {
	return func(ctx context.Context, key cache.Key) (any, error) {
		p, err := keys.Parse(key)
		if err != nil {
			return nil, err
		}
		switch p.Kind {
		case keys.KindDashboard:
			return h.Dashboard(ctx, p.Date)
		case keys.KindFoodByDate:
			return h.FoodLogs(ctx, p.Date, "")
		case keys.KindFoodByMealType:
			return h.FoodLogs(ctx, p.Date, p.MealType)
		case keys.KindExerciseByDate:
			return h.ExerciseLogs(ctx, p.Date)
		case keys.KindExerciseTypes:
			return h.ExerciseTypes(ctx)
		case keys.KindWaterByDate:
			return h.WaterLogs(ctx, p.Date)
		case keys.KindMessages:
			return h.Messages(ctx, p.ConversationID)
		}
		return nil, fmt.Errorf("no loader for %s", key)
	}
}

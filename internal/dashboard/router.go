// Package dashboard tracks the selected date and keeps the keys of the
// surrounding days warm. Navigation never waits on the network: moving to a
// date starts a background prefetch of whatever is missing or stale.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/keys"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

// Day is everything the dashboard shows for one date.
type Day struct {
	Date     string               `json:"date"`
	Summary  models.DailySummary  `json:"summary"`
	Food     []models.FoodLog     `json:"foodLogs"`
	Exercise []models.ExerciseLog `json:"exerciseLogs"`
	Water    []models.WaterLog    `json:"waterLogs"`
}

// Router owns the selected date.
type Router struct {
	cache         *cache.Cache
	loc           *time.Location
	now           func() time.Time
	earliest      time.Time
	maxFutureDays int
	log           zerolog.Logger

	mu       sync.Mutex
	selected string
}

// Option configures a Router.
type Option func(*Router)

// WithLocation sets the timezone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(r *Router) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithAccountCreated sets the first date that can hold data.
func WithAccountCreated(t time.Time) Option {
	return func(r *Router) {
		if !t.IsZero() {
			r.earliest = core.DateOnly(t)
		}
	}
}

// WithMaxFutureDays sets how far ahead of today a date may be selected.
func WithMaxFutureDays(n int) Option {
	return func(r *Router) {
		if n >= 0 {
			r.maxFutureDays = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// New creates a router selecting today.
func New(c *cache.Cache, opts ...Option) *Router {
	r := &Router{
		cache:         c,
		loc:           time.UTC,
		now:           time.Now,
		earliest:      core.EarliestDataDate,
		maxFutureDays: core.DefaultMaxFutureDays,
		log:           log.Logger.With().Str("component", "dashboard").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.selected = r.today()
	return r
}

// Keys lists the keys a dashboard screen reads for date.
func Keys(date string) []cache.Key {
	return []cache.Key{
		keys.DashboardKey(date),
		keys.FoodLogsByDate(date),
		keys.ExerciseLogsByDate(date),
		keys.WaterLogsByDate(date),
	}
}

// AllKeys adds the per-meal lists to Keys.
func AllKeys(date string) []cache.Key {
	out := Keys(date)
	for _, mt := range models.MealTypes {
		out = append(out, keys.FoodLogsByMealType(mt, date))
	}
	return out
}

func (r *Router) today() string {
	return core.FormatDate(core.Today(r.now(), r.loc))
}

// IsValidDateForData reports whether date is an ISO date between the account
// creation date and maxFutureDays after today.
func (r *Router) IsValidDateForData(date string) bool {
	return r.check(date) == nil
}

func (r *Router) check(date string) error {
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Invalid("date", "%q is not an ISO date (YYYY-MM-DD)", date)
	}
	if d.Before(r.earliest) {
		return fmt.Errorf("%s is before %s: %w", date, core.FormatDate(r.earliest), core.ErrDateOutOfRange)
	}
	last := core.Today(r.now(), r.loc).AddDate(0, 0, r.maxFutureDays)
	if d.After(last) {
		return fmt.Errorf("%s is after %s: %w", date, core.FormatDate(last), core.ErrDateOutOfRange)
	}
	return nil
}

// Selected returns the current date.
func (r *Router) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Select moves to date and prefetches it. An invalid date leaves the
// selection unchanged.
func (r *Router) Select(date string) (<-chan struct{}, error) {
	if err := r.check(date); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.selected = date
	r.mu.Unlock()
	return r.Prefetch(date), nil
}

// Next selects the day after the current one.
func (r *Router) Next() (<-chan struct{}, error) {
	return r.shift(1)
}

// Previous selects the day before the current one.
func (r *Router) Previous() (<-chan struct{}, error) {
	return r.shift(-1)
}

func (r *Router) shift(n int) (<-chan struct{}, error) {
	date, err := core.AddDays(r.Selected(), n)
	if err != nil {
		return nil, err
	}
	return r.Select(date)
}

// Today selects the current date in the configured timezone.
func (r *Router) Today() <-chan struct{} {
	date := r.today()
	r.mu.Lock()
	r.selected = date
	r.mu.Unlock()
	return r.Prefetch(date)
}

// Prefetch loads the absent or stale keys of date in the background. The
// returned channel is closed when every load has finished; failures are
// logged and leave the keys to the next read.
func (r *Router) Prefetch(date string) <-chan struct{} {
	done := make(chan struct{})
	var missing []cache.Key
	for _, k := range Keys(date) {
		if r.cache.IsStale(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		var g errgroup.Group
		for _, k := range missing {
			g.Go(func() error {
				if _, err := r.cache.Fetch(context.Background(), k); err != nil {
					r.log.Warn().Err(err).Str("key", k.String()).Msg("prefetch failed")
				}
				return nil
			})
		}
		_ = g.Wait()
		r.log.Debug().Str("date", date).Int("keys", len(missing)).Msg("prefetched")
	}()
	return done
}

// Load fetches every key of date and waits for them.
func (r *Router) Load(ctx context.Context, date string) (Day, error) {
	if _, err := core.ParseDate(date); err != nil {
		return Day{}, core.Invalid("date", "%q is not an ISO date (YYYY-MM-DD)", date)
	}
	day := Day{Date: date}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fetchInto(ctx, r.cache, keys.DashboardKey(date), &day.Summary) })
	g.Go(func() error { return fetchInto(ctx, r.cache, keys.FoodLogsByDate(date), &day.Food) })
	g.Go(func() error { return fetchInto(ctx, r.cache, keys.ExerciseLogsByDate(date), &day.Exercise) })
	g.Go(func() error { return fetchInto(ctx, r.cache, keys.WaterLogsByDate(date), &day.Water) })
	if err := g.Wait(); err != nil {
		return Day{}, err
	}
	return day, nil
}

func fetchInto[T any](ctx context.Context, c *cache.Cache, key cache.Key, out *T) error {
	v, err := c.Fetch(ctx, key)
	if err != nil {
		return err
	}
	t, ok := v.(T)
	if !ok && v != nil {
		return fmt.Errorf("%s holds %T", key, v)
	}
	*out = t
	return nil
}

// LoadRange returns the summaries of every day from start to end inclusive,
// oldest first, with at most parallel loads in flight. Days outside the data
// range are skipped.
func (r *Router) LoadRange(ctx context.Context, start, end time.Time, parallel int) ([]models.DailySummary, error) {
	if parallel <= 0 {
		parallel = core.RangeMaxWorkers
	}
	var dates []string
	for _, d := range core.DaysInRange(start, end) {
		if date := core.FormatDate(d); r.IsValidDateForData(date) {
			dates = append(dates, date)
		}
	}

	var (
		mu  sync.Mutex
		out = make([]models.DailySummary, 0, len(dates))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, date := range dates {
		g.Go(func() error {
			var s models.DailySummary
			if err := fetchInto(ctx, r.cache, keys.DashboardKey(date), &s); err != nil {
				return fmt.Errorf("dashboard %s: %w", date, err)
			}
			if s.Date == "" {
				s.Date = date
			}
			mu.Lock()
			out = append(out, s)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Invalidate marks every key of date stale. Observed keys refetch.
func (r *Router) Invalidate(date string) {
	r.cache.Update(func(tx *cache.Tx) {
		for _, k := range AllKeys(date) {
			tx.Invalidate(k)
		}
	})
}

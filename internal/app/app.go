package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"gosyncmovies/backend"
	_ "gosyncmovies/backend/badgerdoc"
	_ "gosyncmovies/backend/docstore"
	"gosyncmovies/backend/sqlite"
	backendsync "gosyncmovies/backend/sync"
	"gosyncmovies/internal/cache"
	"gosyncmovies/internal/config"
	"gosyncmovies/internal/jobs"
	"gosyncmovies/internal/metrics"
	"gosyncmovies/internal/operations"
	"gosyncmovies/internal/recommend"
	"gosyncmovies/internal/session"
	syncpkg "gosyncmovies/internal/sync"
	"gosyncmovies/internal/utils"
)

// App wires the local store, the remote, the job queue and the services
// that sit on top of them. Every command builds one.
type App struct {
	config  *config.Config
	session *session.Manager
	local   *sqlite.Store
	remote  backend.Remote
	queue   *jobs.Queue
	coord   *syncpkg.Coordinator
	movies  *operations.MovieService
	gate    *recommend.Gate
	log     zerolog.Logger
}

// Options customise New.
type Options struct {
	// Session overrides the keyring-backed session manager.
	Session *session.Manager
	// Worker is set in the worker process, which never spawns another worker.
	Worker bool
	// SpawnArgs are passed to a spawned worker ahead of its subcommand.
	SpawnArgs []string
	// Recommender overrides the model chosen by the recommend config.
	Recommender recommend.Recommender
}

// New builds the application from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	utils.InitLogging(cfg.Log)

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	local, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	sess := opts.Session
	if sess == nil {
		sess = session.NewManager(session.DefaultService)
	}

	remote, err := openRemote(cfg, sess)
	if err != nil {
		local.Close()
		return nil, err
	}

	queuePath, err := cfg.QueuePath()
	if err != nil {
		local.Close()
		remote.Close()
		return nil, err
	}
	queue, err := jobs.Open(queuePath, jobs.WithBackoff(cfg.Queue.Backoff))
	if err != nil {
		local.Close()
		remote.Close()
		return nil, fmt.Errorf("failed to open job queue: %w", err)
	}

	engine := backendsync.NewSyncManager(local, remote, sess, backendsync.WithObserver(metrics.NewSink()))

	var coordOpts []syncpkg.CoordinatorOption
	if cfg.Sync.SpawnWorker && !opts.Worker {
		args := opts.SpawnArgs
		coordOpts = append(coordOpts, syncpkg.WithTriggerHook(func() {
			if err := syncpkg.SpawnWorker(args...); err != nil {
				log := utils.Component("app")
				log.Warn().Err(err).Msg("failed to spawn sync worker")
			}
		}))
	}
	coord, err := syncpkg.NewCoordinator(engine, local, remote, queue, syncpkg.Settings{
		Debounce:         cfg.Sync.Debounce,
		PeriodicInterval: cfg.Sync.PeriodicInterval,
		PeriodicFlex:     cfg.Sync.PeriodicFlex,
		MaxAttempts:      cfg.Sync.MaxAttempts,
	}, coordOpts...)
	if err != nil {
		local.Close()
		remote.Close()
		return nil, err
	}

	model := opts.Recommender
	if model == nil {
		model = recommenderFromConfig(cfg.Recommend)
	}

	return &App{
		config:  cfg,
		session: sess,
		local:   local,
		remote:  remote,
		queue:   queue,
		coord:   coord,
		movies:  operations.NewMovieService(local, coord),
		gate:    recommend.NewGate(local, remote, sess, model, recommend.WithSyncTrigger(coord)),
		log:     utils.Component("app"),
	}, nil
}

func openRemote(cfg *config.Config, sess *session.Manager) (backend.Remote, error) {
	remoteCfg := cfg.Remote
	remoteCfg.Token = sess.Token
	if remoteCfg.Type == "badger" && remoteCfg.Path == "" {
		dir, err := cfg.RemoteDataDir()
		if err != nil {
			return nil, err
		}
		remoteCfg.Path = dir
	}
	remote, err := backend.NewRemote(remoteCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s remote: %w", remoteCfg.Type, err)
	}
	return remote, nil
}

// recommenderFromConfig returns nil when recommendations are disabled or no key is set.
func recommenderFromConfig(cfg config.RecommendConfig) recommend.Recommender {
	if cfg.Provider != "anthropic" || cfg.APIKey == "" {
		return nil
	}
	return recommend.NewAnthropic(cfg.APIKey, cfg.Model, cfg.MaxTokens)
}

func (a *App) Config() *config.Config { return a.config }
func (a *App) Movies() *operations.MovieService { return a.movies }
func (a *App) Coordinator() *syncpkg.Coordinator { return a.coord }
func (a *App) Recommendations() *recommend.Gate { return a.gate }
func (a *App) Session() *session.Manager { return a.session }
func (a *App) Local() *sqlite.Store { return a.local }
func (a *App) Queue() *jobs.Queue { return a.queue }

// NewRunner builds a job runner with the sync handlers registered. owner
// names the runner's lease; an empty owner gets a random one.
func (a *App) NewRunner(owner string) *jobs.Runner {
	if owner == "" {
		host, _ := os.Hostname()
		owner = fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
	}
	cond := jobs.SystemConditions{
		ProbeAddr:        a.config.ProbeAddr(),
		BatteryThreshold: a.config.Queue.BatteryThreshold,
	}
	r := jobs.NewRunner(a.queue, cond,
		jobs.WithPollInterval(a.config.Queue.PollInterval),
		jobs.WithRecheckInterval(a.config.Queue.RecheckInterval),
		jobs.WithLease(owner, leaseTTL),
		jobs.WithResultHook(recordJobResult),
	)
	a.coord.Register(r)
	return r
}

const leaseTTL = time.Minute

func recordJobResult(res jobs.Result) {
	outcome := metrics.OutcomeSuccess
	switch {
	case !res.Recorded:
		outcome = metrics.OutcomeDropped
	case res.Err == nil:
	case res.Job.State == jobs.StateRetryScheduled:
		outcome = metrics.OutcomeRetry
	default:
		outcome = metrics.OutcomeFailed
	}
	metrics.RecordJobRun(res.Job.Name, outcome)
}

// Supervisor builds the worker's service tree: the job runner plus the
// metrics endpoint when it is enabled.
func (a *App) Supervisor(runner *jobs.Runner, extra ...suture.Service) *suture.Supervisor {
	log := utils.Component("supervisor")
	root := suture.New("gosyncmovies", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Fields(e.Map()).Msg(e.String())
		},
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	root.Add(runner)
	if a.config.Metrics.Enabled {
		root.Add(metrics.NewServer(a.config.Metrics.Addr))
	}
	for _, svc := range extra {
		root.Add(svc)
	}
	return root
}

// SignIn records the session, makes sure the remote profile exists and
// pulls the user's library. Signing in as a different user first signs
// the previous one out, which wipes their local data.
func (a *App) SignIn(ctx context.Context, userID, token string, profile backend.UserProfile) (*backend.UserProfile, error) {
	if current, ok := a.session.CurrentUserID(); ok && current != userID {
		if err := a.SignOut(ctx); err != nil {
			return nil, err
		}
	}
	if err := a.session.SignIn(userID, token); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	profile.ID = userID
	stored, err := a.coord.OnSignIn(ctx, profile)
	if stored != nil {
		if cacheErr := cache.SaveProfileToCache(*stored); cacheErr != nil {
			a.log.Debug().Err(cacheErr).Msg("failed to cache profile")
		}
	}
	return stored, err
}

// SignOut stops background sync, wipes the local library and forgets the session.
func (a *App) SignOut(ctx context.Context) error {
	userID, _ := a.session.CurrentUserID()
	if err := a.coord.OnSignOut(ctx); err != nil {
		return err
	}
	if userID != "" {
		if err := cache.ClearProfileCache(userID); err != nil {
			a.log.Debug().Err(err).Msg("failed to clear profile cache")
		}
	}
	return a.session.SignOut()
}

// Profile returns the signed-in user's profile, falling back to the cached
// copy when the remote is unreachable.
func (a *App) Profile(ctx context.Context) (*backend.UserProfile, bool, error) {
	userID, ok := a.session.CurrentUserID()
	if !ok {
		return nil, false, fmt.Errorf("%w: %w", backend.ErrNoSession, utils.ErrNotSignedIn())
	}
	return cache.LoadProfileWithFallback(ctx, a.remote, userID)
}

// Close releases the stores.
func (a *App) Close() error {
	return errors.Join(a.queue.Close(), a.remote.Close(), a.local.Close())
}

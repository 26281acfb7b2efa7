package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/orionbet/orionkeeper/internal/blob/s3"
	"github.com/orionbet/orionkeeper/internal/cache/redis"
	"github.com/orionbet/orionkeeper/internal/config"
	"github.com/orionbet/orionkeeper/internal/crypto"
	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/keeper"
	"github.com/orionbet/orionkeeper/internal/metrics"
	"github.com/orionbet/orionkeeper/internal/notify"
	"github.com/orionbet/orionkeeper/internal/platform/chain"
	"github.com/orionbet/orionkeeper/internal/platform/pyth"
	"github.com/orionbet/orionkeeper/internal/server/handler"
	"github.com/orionbet/orionkeeper/internal/service"
	"github.com/orionbet/orionkeeper/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Interface fields are left nil when their backend is disabled.
type Dependencies struct {
	Metrics *metrics.Metrics

	// Oracle
	Prices *service.PriceService
	Stream *pyth.Stream // nil when streaming is disabled

	// Chain
	Chain  domain.ChainReader
	Tx     domain.ChainWriter // nil without a keeper key
	Keeper *keeper.Keeper

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Stores
	RoundStore domain.RoundStore
	ClaimStore domain.ClaimStore
	AuditStore domain.AuditStore

	// Blob storage
	Archiver domain.Archiver

	Notifier *notify.Notifier
	Health   map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Health:  make(map[string]handler.HealthCheck),
	}

	// --- Redis (locks, price cache, signal bus, rate limits) ---
	var eventLog domain.EventLog
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewSignalBus(redisClient)
		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Oracle.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = bus
		eventLog = bus
		deps.Health["redis"] = redisClient.Ping
	}

	// --- PostgreSQL (advisory history) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		rounds := postgres.NewRoundStore(pool)
		claims := postgres.NewClaimStore(pool)
		audit := postgres.NewAuditStore(pool)
		deps.RoundStore, deps.ClaimStore, deps.AuditStore = rounds, claims, audit
		deps.Health["postgres"] = pgClient.Ping

		// --- S3 cold archive (needs the stores above) ---
		if cfg.Archive.Enabled {
			s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
				Endpoint:       cfg.S3.Endpoint,
				Region:         cfg.S3.Region,
				Bucket:         cfg.S3.Bucket,
				AccessKey:      cfg.S3.AccessKey,
				SecretKey:      cfg.S3.SecretKey,
				UseSSL:         cfg.S3.UseSSL,
				ForcePathStyle: cfg.S3.ForcePathStyle,
			})
			if err != nil {
				return fail("s3", err)
			}
			deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), rounds, claims, audit)
			deps.Health["s3"] = s3Client.Health
		}
	}

	// --- Price oracle ---
	oracle := pyth.NewClient(cfg.Oracle.Endpoint, cfg.Oracle.PriceFeedID, cfg.Oracle.HTTPTimeout.Duration)
	deps.Prices = service.NewPriceService(
		oracle,
		deps.PriceCache,
		deps.SignalBus,
		cfg.Oracle.PriceFeedID,
		cfg.Oracle.MaxStale.Duration,
		deps.Metrics,
		logger,
	)
	if cfg.Oracle.StreamEnabled {
		deps.Stream = pyth.NewStream(cfg.Oracle.WSEndpoint, cfg.Oracle.PriceFeedID, logger)
		deps.Stream.OnQuote(deps.Prices.HandleStreamQuote)
	}

	// --- Chain ---
	ethClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID)
	if err != nil {
		return fail("chain", err)
	}
	closers = append(closers, ethClient.Close)
	deps.Health["chain"] = func(ctx context.Context) error {
		_, err := ethClient.BlockNumber(ctx)
		return err
	}

	reader, err := chain.NewReader(ethClient, cfg.Chain.ContractAddress)
	switch {
	case err == nil:
		deps.Chain = reader
	case errors.Is(err, domain.ErrNotConfigured):
		logger.Warn("no contract address configured, chain endpoints will fail")
		deps.Chain = unconfiguredChain{backend: ethClient}
	default:
		return fail("chain reader", err)
	}

	var verifier keeper.ClaimVerifier
	if reader != nil {
		verifier = crypto.NewClaimDomain(cfg.Chain.ChainID, cfg.Chain.ContractAddress)
	}

	keyCfg := crypto.KeyConfig{
		RawPrivateKey:    cfg.Keeper.PrivateKey,
		EncryptedKeyPath: cfg.Keeper.EncryptedKeyPath,
		KeyPassword:      cfg.Keeper.KeyPassword,
	}
	if keyCfg.Configured() && reader != nil {
		key, err := crypto.LoadKeeperKey(keyCfg)
		if err != nil {
			return fail("keeper key", err)
		}
		tx, err := chain.NewTransactor(ethClient, key, chain.TransactorConfig{
			ChainID:      cfg.Chain.ChainID,
			Contract:     cfg.Chain.ContractAddress,
			GasLimit:     cfg.Chain.GasLimit,
			Timeout:      cfg.Chain.TxTimeout.Duration,
			PollInterval: 2 * time.Second,
		}, deps.Metrics, logger)
		if err != nil {
			return fail("transactor", err)
		}
		deps.Tx = tx
		logger.Info("keeper key loaded", slog.String("address", tx.Address()))
	} else {
		logger.Warn("no keeper key configured, write endpoints will answer 500")
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Keeper ---
	deps.Keeper = keeper.New(keeper.Deps{
		Chain:    deps.Chain,
		Tx:       deps.Tx,
		Prices:   deps.Prices,
		Verifier: verifier,
		Locks:    deps.LockManager,
		Rounds:   deps.RoundStore,
		Claims:   deps.ClaimStore,
		Audit:    deps.AuditStore,
		Bus:      deps.SignalBus,
		Events:   eventLog,
		Notifier: deps.Notifier,
		Metrics:  deps.Metrics,
		Logger:   logger,
	}, keeper.Config{
		RoundDuration: cfg.Keeper.RoundDuration.Duration,
		Cooldown:      cfg.Keeper.Cooldown.Duration,
		Lookback:      cfg.Keeper.Lookback,
		LockTTL:       cfg.SettleLockTTL(),
		FeeBps:        uint16(cfg.Contract.FeeBps),
		Treasury:      cfg.Contract.Treasury,
	})

	return deps, cleanup, nil
}

// unconfiguredChain stands in for the contract reader when no contract
// address is set. Account balances still come from the node.
type unconfiguredChain struct {
	backend chain.Caller
}

var errNoContract = fmt.Errorf("chain: contract address: %w", domain.ErrNotConfigured)

func (unconfiguredChain) CurrentRoundID(context.Context) (uint64, error) { return 0, errNoContract }

func (unconfiguredChain) GetRound(context.Context, uint64) (domain.Round, error) {
	return domain.Round{}, errNoContract
}

func (unconfiguredChain) GetUserBet(context.Context, uint64, string) (domain.UserBet, error) {
	return domain.UserBet{}, errNoContract
}

func (unconfiguredChain) FeeBps(context.Context) (uint64, error)    { return 0, errNoContract }
func (unconfiguredChain) Initialized(context.Context) (bool, error) { return false, errNoContract }

func (c unconfiguredChain) Balance(ctx context.Context, addr string) (*big.Int, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("chain: balance of %q: %w", addr, domain.ErrInvalidInput)
	}
	bal, err := c.backend.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return nil, fmt.Errorf("chain: balance of %s: %w", addr, err)
	}
	return bal, nil
}

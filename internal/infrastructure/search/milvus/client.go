// Package milvus is the vector-search side of prior-art retrieval: a managed
// connection to Milvus, a thin searcher over it, and the PatentRetriever that
// turns a search query into ranked raw hits.
package milvus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// MilvusClientFactory creates the SDK client. Replaced in tests.
type MilvusClientFactory func(ctx context.Context, conf client.Config) (client.Client, error)

var milvusNewClient MilvusClientFactory = client.NewClient

var (
	ErrConnectionFailed = errors.New(errors.ErrCodeVectorConnection, "milvus connection failed")
	ErrUnhealthy        = errors.New(errors.ErrCodeVectorUnhealthy, "milvus unhealthy")
	ErrClientClosed     = errors.New(errors.ErrCodeVectorConnection, "milvus client closed")
)

// ClientConfig holds the connection settings.
type ClientConfig struct {
	Address             string
	Username            string
	Password            string
	DBName              string
	TLSEnabled          bool
	TLSCertPath         string
	TLSServerName       string
	ConnectTimeout      time.Duration
	HealthCheckInterval time.Duration
	KeepAliveTime       time.Duration
	KeepAliveTimeout    time.Duration
	// ReconnectAfter is the number of consecutive failed background health
	// checks that triggers a reconnect.
	ReconnectAfter int
}

// Client owns the SDK connection, probes it periodically and reconnects
// after repeated failures.
type Client struct {
	milvusClient client.Client
	config       ClientConfig
	logger       logging.Logger
	healthy      atomic.Bool
	closed       atomic.Bool
	cancel       context.CancelFunc
	mu           sync.RWMutex

	// failures is only touched from the probe goroutine.
	failures int
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.DBName == "" {
		cfg.DBName = "default"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if cfg.KeepAliveTime == 0 {
		cfg.KeepAliveTime = 60 * time.Second
	}
	if cfg.KeepAliveTimeout == 0 {
		cfg.KeepAliveTimeout = 20 * time.Second
	}
	if cfg.ReconnectAfter == 0 {
		cfg.ReconnectAfter = 3
	}
}

// NewClient connects, verifies health and starts the background probe.
func NewClient(cfg ClientConfig, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	applyClientDefaults(&cfg)

	ctx, cancel := context.WithCancel(context.Background())
	mc, err := connect(ctx, cfg)
	if err != nil {
		cancel()
		return nil, ErrConnectionFailed.WithCause(err).WithDetail(cfg.Address)
	}

	c := &Client{
		milvusClient: mc,
		config:       cfg,
		logger:       logger.Named("milvus"),
		cancel:       cancel,
	}

	if err := c.CheckHealth(ctx); err != nil {
		_ = c.Close()
		return nil, ErrConnectionFailed.WithCause(err).WithDetail(cfg.Address)
	}

	go c.startHealthCheck(ctx)

	c.logger.Info("milvus client connected", logging.String("address", cfg.Address), logging.String("db", cfg.DBName))
	return c, nil
}

// NewClientFromSDK wraps an existing SDK client without starting the
// background probe.
func NewClientFromSDK(mc client.Client, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Client{
		milvusClient: mc,
		logger:       logger,
		cancel:       func() {},
	}
	c.healthy.Store(true)
	return c
}

func connect(ctx context.Context, cfg ClientConfig) (client.Client, error) {
	milvusCfg := client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	}

	var dialOpts []grpc.DialOption
	if cfg.TLSEnabled {
		tlsConfig := &tls.Config{
			ServerName: cfg.TLSServerName,
			MinVersion: tls.VersionTLS12,
		}
		caCert, err := os.ReadFile(cfg.TLSCertPath)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "read milvus TLS cert")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New(errors.ErrCodeValidation, "parse milvus TLS cert")
		}
		tlsConfig.RootCAs = pool
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
		milvusCfg.EnableTLSAuth = true
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                cfg.KeepAliveTime,
		Timeout:             cfg.KeepAliveTimeout,
		PermitWithoutStream: true,
	}))
	milvusCfg.DialOptions = dialOpts

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	return milvusNewClient(connectCtx, milvusCfg)
}

// CheckHealth probes the server and records the result.
func (c *Client) CheckHealth(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	c.mu.RLock()
	mc := c.milvusClient
	c.mu.RUnlock()

	if mc == nil {
		return ErrConnectionFailed
	}

	state, err := mc.CheckHealth(ctx)
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("milvus health check failed", logging.Err(err))
		return ErrUnhealthy.WithCause(err)
	}
	if state != nil && !state.IsHealthy {
		c.healthy.Store(false)
		c.logger.Warn("milvus reports unhealthy", logging.Any("reasons", state.Reasons))
		return ErrUnhealthy.WithDetailf("%v", state.Reasons)
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy returns the last recorded probe result.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// SDK returns the underlying SDK client.
func (c *Client) SDK() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.milvusClient
}

// ServerVersion returns the Milvus server version string.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	mc := c.SDK()
	if mc == nil {
		return "", ErrConnectionFailed
	}
	v, err := mc.GetVersion(ctx)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeVectorConnection, "get milvus version")
	}
	return v, nil
}

// Close stops the probe and closes the connection. Safe to call twice.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.milvusClient != nil {
		err = c.milvusClient.Close()
	}
	c.healthy.Store(false)
	c.logger.Info("milvus client closed")
	return err
}

func (c *Client) startHealthCheck(ctx context.Context) {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probeOnce(ctx)
		}
	}
}

func (c *Client) probeOnce(ctx context.Context) {
	prev := c.healthy.Load()
	err := c.CheckHealth(ctx)
	curr := c.healthy.Load()

	switch {
	case prev && !curr:
		c.logger.Error("milvus became unhealthy", logging.Err(err))
	case !prev && curr:
		c.logger.Info("milvus recovered")
	}

	if curr {
		c.failures = 0
		return
	}
	c.failures++
	if c.failures < c.config.ReconnectAfter {
		return
	}
	c.logger.Warn("milvus consecutive failures, reconnecting", logging.Int("failures", c.failures))
	if err := c.reconnect(ctx); err != nil {
		c.logger.Error("milvus reconnect failed", logging.Err(err))
		return
	}
	c.failures = 0
}

func (c *Client) reconnect(ctx context.Context) error {
	mc, err := connect(ctx, c.config)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.milvusClient
	c.milvusClient = mc
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	c.logger.Warn("milvus client reconnected")
	return nil
}

// ValidateConfig checks the settings NewClient cannot default.
func ValidateConfig(cfg ClientConfig) error {
	if cfg.Address == "" {
		return errors.New(errors.ErrCodeValidation, "milvus address is required")
	}
	if cfg.ConnectTimeout < 0 {
		return errors.New(errors.ErrCodeValidation, "milvus connect timeout must be >= 0")
	}
	if cfg.ReconnectAfter < 0 {
		return errors.New(errors.ErrCodeValidation, "milvus reconnect threshold must be >= 0")
	}
	if cfg.TLSEnabled && cfg.TLSCertPath == "" {
		return errors.New(errors.ErrCodeValidation, "milvus TLS cert path required when TLS is enabled")
	}
	return nil
}

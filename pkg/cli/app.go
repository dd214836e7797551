package cli

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/config"
	"github.com/ekaya-inc/ekaya-querykit/pkg/engine"
	"github.com/ekaya-inc/ekaya-querykit/pkg/logging"
	"github.com/ekaya-inc/ekaya-querykit/pkg/metrics"
)

// metricsPrefix namespaces every exported metric.
const metricsPrefix = "querykit"

// app is the state shared by the commands of one invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	output      string
	showMetrics bool
	timeout     time.Duration

	registry *datasource.ConnectionRegistry
	manager  *engine.Manager
	gatherer *prometheus.Registry
}

// connectionConfig maps the datasource section onto a connection record.
func (a *app) connectionConfig() datasource.ConnectionConfig {
	ds := a.cfg.Datasource
	host, port := ds.Address()
	return datasource.ConnectionConfig{
		Type:     ds.Type,
		Host:     host,
		Port:     port,
		User:     ds.User,
		Password: ds.Password,
		Database: ds.Database,
		SSL:      ds.SSL,
	}
}

// engine opens the configured datasource on first use.
func (a *app) engine(ctx context.Context) (*engine.Engine, error) {
	if a.manager == nil {
		var m *metrics.Metrics
		if a.cfg.Metrics.Enabled {
			a.gatherer = prometheus.NewRegistry()
			var err error
			if m, err = metrics.New(metricsPrefix, a.gatherer); err != nil {
				return nil, err
			}
		}

		a.registry = datasource.NewConnectionRegistry(datasource.RegistryConfig{
			TTLMinutes:     a.cfg.Registry.ConnectionTTLMinutes,
			PoolMaxConns:   a.cfg.Registry.PoolMaxConns,
			PoolMinConns:   a.cfg.Registry.PoolMinConns,
			ConnectRetries: a.cfg.Registry.ConnectRetries,
		}, a.logger)
		a.manager = engine.NewManager(a.registry, a.logger, engine.OptionsFromConfig(a.cfg.Engine, m))
	}

	cc := a.connectionConfig()
	a.logger.Debug("Opening datasource",
		zap.String("type", cc.Type),
		zap.String("host", cc.Host),
		zap.String("database", logging.SanitizeConnectionString(cc.Database)))

	_, e, err := a.manager.Open(ctx, cc)
	return e, err
}

func (a *app) close() {
	if a.registry == nil {
		return
	}
	if err := a.registry.Close(); err != nil {
		a.logger.Warn("Closing connections failed", zap.String("error", logging.SanitizeError(err)))
	}
	a.registry = nil
}

// writeMetrics dumps the collected metrics in the text exposition format.
func (a *app) writeMetrics(w io.Writer) error {
	if a.gatherer == nil {
		return nil
	}
	families, err := a.gatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

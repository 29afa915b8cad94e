package nyarudb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Voskan/nyarudb/internal/codec"
	"github.com/Voskan/nyarudb/internal/shard"
)

// Option configures a Store at Open time.
type Option func(*Store)

// WithLogger installs a logger used for recovered-error warnings and
// auto-merge diagnostics across every collection. The default is a no-op
// logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCompression sets the default compression method for shards created in
// collections that do not override it. The default is codec.None.
func WithCompression(m codec.Method) Option {
	return func(s *Store) { s.compression = m }
}

// WithProtection sets the default file-protection tag applied to shards
// created in collections that do not override it.
func WithProtection(p shard.Protection) Option {
	return func(s *Store) { s.protection = p }
}

// WithMetricsRegistry enables Prometheus metrics for the index manager of
// every collection. Passing nil (the default) disables metrics.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Store) { s.registry = reg }
}

// WithAutoMerge enables the background small-shard consolidation task for
// every collection, ticking at interval and merging shards whose document
// count is below threshold. Disabled by default (interval <= 0).
func WithAutoMerge(interval time.Duration, threshold int) Option {
	return func(s *Store) {
		s.mergeInterval = interval
		s.mergeThreshold = threshold
	}
}

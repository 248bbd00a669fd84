/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rendezvous

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/srediag/shm-rendezvous/pkg/shm"
)

const (
	envPrefix = "SHM_RENDEZVOUS"

	minBufferSize = 1
	maxBufferSize = 1 << 20
)

// Config holds the parameters shared by every process attached to a channel.
type Config struct {
	// BufferSize is the payload capacity of the segment created by Open.
	// Attach adopts the creator's size.
	BufferSize int `envconfig:"BUFFER_SIZE" default:"1024"`
	// Framing must be identical on all attached processes.
	Framing shm.Framing `envconfig:"FRAMING" default:"sentinel"`
	// PoisonGate makes Write, Read and Enable check the poison flag
	// before blocking and fail fast with ErrChannelPoisoned.
	PoisonGate bool `envconfig:"POISON_GATE" default:"false"`
	// Perm is the permission mask of created IPC resources.
	Perm uint32 `envconfig:"PERM" default:"0666"`
}

// DefaultConfig is the legacy layout: 1024 byte buffer, sentinel framing.
func DefaultConfig() *Config {
	return &Config{
		BufferSize: shm.DefaultSize,
		Framing:    shm.FramingSentinel,
		Perm:       shm.DefaultPerm,
	}
}

// LoadConfig reads SHM_RENDEZVOUS_* environment variables over the defaults.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// VerifyConfig rejects configurations Open cannot honour.
func VerifyConfig(config *Config) error {
	if config.BufferSize < minBufferSize || config.BufferSize > maxBufferSize {
		return fmt.Errorf("BufferSize must be in [%d, %d], got %d", minBufferSize, maxBufferSize, config.BufferSize)
	}
	switch config.Framing {
	case shm.FramingSentinel, shm.FramingLengthPrefixed:
	default:
		return fmt.Errorf("unknown Framing %d", config.Framing)
	}
	if config.Perm == 0 || config.Perm&^0o777 != 0 {
		return fmt.Errorf("Perm must be a non-zero permission mask, got %#o", config.Perm)
	}
	return nil
}

// Option customizes Open and Attach.
type Option func(*options)

type options struct {
	config  *Config
	logger  *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// WithConfig overrides DefaultConfig.
func WithConfig(config *Config) Option {
	return func(o *options) { o.config = config }
}

// WithLogger routes the channel's log output to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records the channel's activity in m. One Metrics may be shared
// by many channels.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer records lifecycle and poison spans with tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithPoisonGate is shorthand for setting Config.PoisonGate.
func WithPoisonGate(enabled bool) Option {
	return func(o *options) {
		if o.config == nil {
			o.config = DefaultConfig()
		}
		cfg := *o.config
		cfg.PoisonGate = enabled
		o.config = &cfg
	}
}

func buildOptions(opts []Option) (*options, error) {
	o := &options{config: DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}
	if o.config == nil {
		o.config = DefaultConfig()
	}
	if err := VerifyConfig(o.config); err != nil {
		return nil, err
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("")
	}
	return o, nil
}

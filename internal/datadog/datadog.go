package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

type client interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
	Close() error
}

var dogstatsd client

func InitMetrics(addr, namespace string, tags []string) {
	c, err := statsd.New(addr, statsd.WithNamespace(namespace), statsd.WithTags(tags))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}
	dogstatsd = c

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func Incr(name string, tags ...string) {
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Incr(name, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
	}
}

func Close() {
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to flush DogStatsD client")
	}
	dogstatsd = nil
}

package discord

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	gobreaker "github.com/sony/gobreaker/v2"

	"discoops/internal/config"
	"discoops/internal/metrics"
	"discoops/internal/platform"
)

const breakerName = "discord-rest"

func newBreaker(logger *slog.Logger, cfg config.DiscordConfig) *gobreaker.CircuitBreaker[any] {
	metrics.BreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Not-found, forbidden and unknown-member answers count as successes.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return !platform.IsTransient(classify(err))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker changed state.", "breaker", name, "from", stateName(from), "to", stateName(to))
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

// do runs one REST call through the breaker and classifies its error.
func do[T any](ctx context.Context, c *Client, endpoint string, fn func(opts ...discordgo.RequestOption) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return fn(discordgo.WithContext(ctx))
	})
	err = classify(err)
	metrics.RecordPlatformRequest(endpoint, outcome(err))
	if err != nil {
		c.logger.Debug("Discord request failed.", "endpoint", endpoint, "error", err)
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}

// exec is do for calls without a result.
func exec(ctx context.Context, c *Client, endpoint string, fn func(opts ...discordgo.RequestOption) error) error {
	_, err := do(ctx, c, endpoint, func(opts ...discordgo.RequestOption) (struct{}, error) {
		return struct{}{}, fn(opts...)
	})
	return err
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

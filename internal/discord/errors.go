package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	gobreaker "github.com/sony/gobreaker/v2"

	"discoops/internal/platform"
)

// Discord JSON error codes the engine distinguishes.
const (
	codeUnknownMember         = 10007
	codeUnknownRole           = 10011
	codeUnknownUser           = 10013
	codeUnknownScheduledEvent = 10070
	codeMissingAccess         = 50001
	codeMissingPermissions    = 50013
)

// classify maps a discordgo error onto the platform error taxonomy. Errors
// that match nothing are returned unchanged and count as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("discord unavailable: %w", err)
		}
		return err
	}

	if rest.Message != nil {
		switch rest.Message.Code {
		case codeUnknownMember, codeUnknownUser:
			return fmt.Errorf("%w: %w", platform.ErrUnknownMember, err)
		case codeUnknownRole, codeUnknownScheduledEvent:
			return fmt.Errorf("%w: %w", platform.ErrNotFound, err)
		case codeMissingAccess, codeMissingPermissions:
			return fmt.Errorf("%w: %w", platform.ErrForbidden, err)
		}
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %w", platform.ErrForbidden, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", platform.ErrNotFound, err)
		}
	}
	return err
}

// outcome is the metrics label for a classified error.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, platform.ErrNotFound):
		return "not_found"
	case errors.Is(err, platform.ErrForbidden):
		return "forbidden"
	case errors.Is(err, platform.ErrUnknownMember):
		return "unknown_member"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transient"
	}
}

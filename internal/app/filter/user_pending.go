package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wejay/internal/domain/track"
)

// UserPendingConfig represents the configuration for UserPendingFilter.
type UserPendingConfig struct {
	MaxPending int `yaml:"max_pending" mapstructure:"max_pending" default:"1" validate:"gte=1"`
}

// UserPendingFilter limits how many tracks one user may have waiting.
type UserPendingFilter struct {
	config UserPendingConfig
}

func (f *UserPendingFilter) Name() string {
	return "user_pending_filter"
}

func (f *UserPendingFilter) Description() string {
	return "Checks if the user already has the maximum number of tracks waiting to be played"
}

func (f *UserPendingFilter) ReturnCodes() []string {
	return []string{"user_pending"}
}

func (f *UserPendingFilter) ValidateConfig(settings map[string]any) error {
	var config UserPendingConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	zlog.Info().Msgf("user pending filter config: %+v", config)
	return nil
}

func (f *UserPendingFilter) Check(ctx context.Context, req Request, queue []track.Entry) Result {
	limit := f.config.MaxPending
	if limit == 0 {
		limit = 1
	}

	pending := 0
	for i, e := range queue {
		// The playing track is no longer waiting
		if i == 0 {
			continue
		}
		if e.AddedBy == req.UserID {
			pending++
		}
	}
	if pending >= limit {
		return Reject("user_pending")
	}
	return Accept()
}

func init() {
	Register("user_pending_filter", func() Filter {
		return &UserPendingFilter{}
	})
}

package protocol

import (
	"encoding/json"
	"regexp"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnknownType is returned for an envelope with an unsupported type.
	ErrUnknownType = errors.New("unknown message type")
	// ErrInvalidPayload is returned when a payload fails decoding or validation.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Envelope is the wire frame for every message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidID reports whether id is a valid room or user ID.
func ValidID(id string) bool {
	return slugPattern.MatchString(id)
}

// DecodeIntent parses and validates a client frame.
func DecodeIntent(data []byte) (Intent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(ErrInvalidPayload, err.Error())
	}

	var (
		intent Intent
		err    error
	)
	switch env.Type {
	case TypeJoinRoom:
		intent, err = decode[JoinRoom](env.Payload)
	case TypeLeaveRoom:
		intent, err = decode[LeaveRoom](env.Payload)
	case TypeCreatePlaylist:
		intent, err = decode[CreatePlaylist](env.Payload)
	case TypeAddTrack:
		intent, err = decode[AddTrack](env.Payload)
		if err == nil && intent.(AddTrack).Track.SpotifyID == "" {
			err = errors.Wrap(ErrInvalidPayload, "track.spotifyId is required")
		}
	case TypeRemoveTrack:
		intent, err = decode[RemoveTrack](env.Payload)
	case TypeMoveTrack:
		intent, err = decode[MoveTrack](env.Payload)
	case TypeUpdatePlayback:
		intent, err = decode[UpdatePlayback](env.Payload)
	case TypeTrackEnded:
		intent, err = decode[TrackEnded](env.Payload)
	default:
		return nil, errors.Wrapf(ErrUnknownType, "type %q", env.Type)
	}
	if err != nil {
		return nil, err
	}
	return intent, nil
}

func decode[T Intent](payload json.RawMessage) (Intent, error) {
	var v T
	if len(payload) == 0 {
		return nil, errors.Wrap(ErrInvalidPayload, "missing payload")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	if err := validate.Struct(v); err != nil {
		return nil, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	return v, nil
}

// EncodeEvent serialises an event into an envelope.
func EncodeEvent(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s payload", e.Type())
	}
	data, err := json.Marshal(Envelope{Type: e.Type(), Payload: payload})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", e.Type())
	}
	return data, nil
}

// EncodeIntent serialises an intent into an envelope. Used by clients.
func EncodeIntent(i Intent) ([]byte, error) {
	payload, err := json.Marshal(i)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s payload", i.Type())
	}
	return json.Marshal(Envelope{Type: i.Type(), Payload: payload})
}

// DecodeEvent parses a server frame. Used by clients and tests.
func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(ErrInvalidPayload, err.Error())
	}

	var (
		e   Event
		err error
	)
	switch env.Type {
	case TypeQueueState:
		var v QueueState
		err = json.Unmarshal(env.Payload, &v)
		e = v
	case TypeQueueUpdated:
		var v QueueUpdated
		err = json.Unmarshal(env.Payload, &v)
		e = v
	case TypePlaybackSync:
		var v PlaybackSync
		err = json.Unmarshal(env.Payload, &v)
		e = v
	case TypeUserJoined:
		var v UserJoined
		err = json.Unmarshal(env.Payload, &v)
		e = v
	case TypeUserLeft:
		var v UserLeft
		err = json.Unmarshal(env.Payload, &v)
		e = v
	case TypePlaylistCreated:
		var v PlaylistCreated
		err = json.Unmarshal(env.Payload, &v)
		e = v
	case TypeError:
		var v Error
		err = json.Unmarshal(env.Payload, &v)
		e = v
	default:
		return nil, errors.Wrapf(ErrUnknownType, "type %q", env.Type)
	}
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	return e, nil
}

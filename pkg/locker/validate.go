package locker

import (
	"errors"
	"time"

	"lock-service/internal/validator"
)

type lockParams struct {
	Key        string `json:"key" validate:"required,max=512,lockkey"`
	RoutingKey string `json:"routing_key" validate:"max=512,lockkey"`
}

// ValidateKey checks key and routingKey without a duration, for operations
// such as Release and Locked that do not need one.
func ValidateKey(key, routingKey string) error {
	err := validator.Default().Validate(lockParams{
		Key:        key,
		RoutingKey: routingKey,
	})
	if err != nil {
		return invalid(err)
	}
	return nil
}

func validateParams(key, routingKey string, duration time.Duration) error {
	if err := ValidateKey(key, routingKey); err != nil {
		return err
	}
	return CheckDuration(duration)
}

var (
	errDurationTooShort   = errors.New("duration must be at least one second")
	errFractionalDuration = errors.New("duration must be a whole number of seconds")
)

// CheckDuration rejects durations that are not a positive whole number of
// seconds. Backends call it before touching their medium.
func CheckDuration(duration time.Duration) error {
	if duration < time.Second {
		return invalid(errDurationTooShort)
	}
	if duration%time.Second != 0 {
		return invalid(errFractionalDuration)
	}
	return nil
}

package slabq

import (
	"errors"
	"log/slog"
	"reflect"
	"time"
)

// defaultName is the queue's file-name prefix when WithName is not supplied,
// carried over unchanged from the original Chronicle-backed implementation's
// Builder default.
const defaultName = "chronicleblockingqueue"

const (
	defaultMaxSlabs      = 0 // 0 means unbounded
	defaultSlabBlockSize = 64 * 1024 * 1024
	defaultMsgCapacity   = 128 * 1024
	defaultPollInterval  = 5 * time.Millisecond
)

// options accumulates validated configuration before New builds the queue
// engine.
type options[T any] struct {
	name            *string
	maxSlabs        *uint32
	slabBlockSize   *uint64
	messageCapacity *uint32
	serializer      Serializer[T]
	deserializer    Deserializer[T]
	equal           func(a, b T) bool
	logger          *slog.Logger
	pollInterval    *time.Duration
	sweepOrphans    *bool
}

// Option configures a Queue[T] created by New.
type Option[T any] func(*options[T]) error

// WithName sets the file-name prefix shared by all of this queue's files.
func WithName[T any](name string) Option[T] {
	return func(o *options[T]) error {
		if name == "" {
			return errors.Join(ErrInvalidConfiguration, errors.New("name must not be empty"))
		}
		o.name = &name
		return nil
	}
}

// WithMaxSlabs bounds the number of concurrently live slabs, back-pressuring
// producers once reached. n must be greater than 0; omit the option for an
// unbounded queue (the default).
func WithMaxSlabs[T any](n uint32) Option[T] {
	return func(o *options[T]) error {
		if n == 0 {
			return errors.Join(ErrInvalidConfiguration, errors.New("maxSlabs must be set to greater than 0, omit the option for unbounded"))
		}
		o.maxSlabs = &n
		return nil
	}
}

// WithSlabBlockSize sets the data-region byte budget per slab that drives
// rollover.
func WithSlabBlockSize[T any](n uint64) Option[T] {
	return func(o *options[T]) error {
		if n < 1 {
			return errors.Join(ErrInvalidConfiguration, errors.New("slabBlockSize must be set to greater than 0"))
		}
		o.slabBlockSize = &n
		return nil
	}
}

// WithMessageCapacity sets the maximum bytes a single serialized excerpt may
// occupy.
func WithMessageCapacity[T any](n uint32) Option[T] {
	return func(o *options[T]) error {
		if n < 1 {
			return errors.Join(ErrInvalidConfiguration, errors.New("messageCapacity must be set to greater than 0"))
		}
		o.messageCapacity = &n
		return nil
	}
}

// WithSerializer overrides the default JSON serializer.
func WithSerializer[T any](s Serializer[T]) Option[T] {
	return func(o *options[T]) error {
		if s == nil {
			return errors.Join(ErrInvalidConfiguration, errors.New("serializer must not be nil"))
		}
		o.serializer = s
		return nil
	}
}

// WithDeserializer overrides the default JSON deserializer.
func WithDeserializer[T any](d Deserializer[T]) Option[T] {
	return func(o *options[T]) error {
		if d == nil {
			return errors.Join(ErrInvalidConfiguration, errors.New("deserializer must not be nil"))
		}
		o.deserializer = d
		return nil
	}
}

// WithEqual overrides the equality function used by Contains/ContainsAll.
// Defaults to reflect.DeepEqual.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(o *options[T]) error {
		if equal == nil {
			return errors.Join(ErrInvalidConfiguration, errors.New("equal must not be nil"))
		}
		o.equal = equal
		return nil
	}
}

// WithLogger sets the structured logger used for rollover/deletion/corruption
// diagnostics. Defaults to slog.Default().
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(o *options[T]) error {
		if logger == nil {
			return errors.Join(ErrInvalidConfiguration, errors.New("logger must not be nil"))
		}
		o.logger = logger
		return nil
	}
}

// WithPollInterval sets the bounded-wait fallback tick used by Put/Take/
// OfferTimeout/PollTimeout to observe state changes made by another process.
func WithPollInterval[T any](d time.Duration) Option[T] {
	return func(o *options[T]) error {
		if d <= 0 {
			return errors.Join(ErrInvalidConfiguration, errors.New("pollInterval must be greater than 0"))
		}
		o.pollInterval = &d
		return nil
	}
}

// WithOrphanSweep enables or disables the startup sweep for slab files left
// behind by a crash between cursor advance and slab deletion. Enabled by
// default.
func WithOrphanSweep[T any](enabled bool) Option[T] {
	return func(o *options[T]) error {
		o.sweepOrphans = &enabled
		return nil
	}
}

func defaultEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/dcastano/inspectord/internal/domain"
)

// Repository is the backing-store contract for sessions, inspection
// records, and the vehicle/driver registry. Session mutations are each
// individually atomic so concurrent analyze calls never lose an update;
// no global ordering across calls is promised.
type Repository interface {
	// EnsureSession creates the session row if it does not exist yet.
	EnsureSession(ctx context.Context, key string) error

	// GetSession returns the session, or nil when it does not exist.
	GetSession(ctx context.Context, key string) (*domain.Session, error)

	// SetAbort marks the session aborted. Idempotent: the first recorded
	// reason wins and later calls are no-ops.
	SetAbort(ctx context.Context, key, reason string) error

	// IncrementGeoMismatch atomically bumps the soft geo-mismatch counter
	// and returns the new value.
	IncrementGeoMismatch(ctx context.Context, key string) (int, error)

	// AppendImage stores one analyzed image. Appending a hash that already
	// exists in the session is a no-op (at-most-one analysis per image).
	AppendImage(ctx context.Context, key string, rec *domain.ImageRecord) error

	// FindImageByHash returns the stored image with a completed analysis,
	// or nil when no such image exists.
	FindImageByHash(ctx context.Context, key, hash string) (*domain.ImageRecord, error)

	// ListImages returns all images in insertion order.
	ListImages(ctx context.Context, key string) ([]domain.ImageRecord, error)

	// CountImages returns the number of stored images.
	CountImages(ctx context.Context, key string) (int, error)

	// AddFlag records a fraud or review flag with set semantics.
	AddFlag(ctx context.Context, key string, kind domain.FlagKind, flag string) error

	// ListFlags returns the stored flags of one kind, sorted.
	ListFlags(ctx context.Context, key string, kind domain.FlagKind) ([]string, error)

	// AddNote appends a free-text note.
	AddNote(ctx context.Context, key, note string) error

	// ListNotes returns all notes in insertion order.
	ListNotes(ctx context.Context, key string) ([]string, error)

	// ClearSession deletes the session and everything attached to it.
	ClearSession(ctx context.Context, key string) error

	// UpsertInspection persists a finalized record keyed by session.
	UpsertInspection(ctx context.Context, rec *domain.InspectionRecord) error

	// GetInspection returns the persisted record, or nil when absent.
	GetInspection(ctx context.Context, sessionKey string) (*domain.InspectionRecord, error)

	// GetVehicle returns the vehicle for a plate, or nil when unknown.
	GetVehicle(ctx context.Context, plate string) (*domain.Vehicle, error)

	// UpsertVehicle creates or updates a vehicle record.
	UpsertVehicle(ctx context.Context, v *domain.Vehicle) error

	// InsertDriver stores a driver record.
	InsertDriver(ctx context.Context, d *domain.Driver) error

	// AnyDriver returns an arbitrary driver, or nil when none exist.
	AnyDriver(ctx context.Context) (*domain.Driver, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close closes the underlying connection.
	Close() error
}

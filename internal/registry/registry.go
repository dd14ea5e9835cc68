// Package registry resolves vehicles and drivers for inspections. Lookups
// hit a short-lived in-memory cache first, then the store; unknown plates
// get a simulated registry record so a demo deployment works without an
// external fleet system.
package registry

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/dcastano/inspectord/internal/domain"
	"github.com/dcastano/inspectord/internal/store"
)

var carCatalog = []struct {
	Brand  string
	Models []string
}{
	{"Toyota", []string{"Corolla", "Camry", "RAV4"}},
	{"Volkswagen", []string{"Golf", "Passat", "Tiguan"}},
	{"Ford", []string{"Focus", "Mondeo", "Kuga"}},
	{"Hyundai", []string{"Solaris", "Elantra", "Tucson"}},
	{"Kia", []string{"Rio", "Ceed", "Sportage"}},
	{"Skoda", []string{"Octavia", "Rapid", "Kodiaq"}},
}

var carColors = []string{"white", "black", "silver", "gray", "blue", "red", "green"}

var driverNames = []string{
	"Alex Morgan", "Sam Carter", "Jordan Lee", "Casey Brooks",
	"Riley Novak", "Dana Petrov", "Morgan Hale", "Taylor Reed",
}

const vinAlphabet = "ABCDEFGHJKLMNPRSTUVWXYZ0123456789"

// Registry fronts the vehicle/driver tables with a TTL cache.
type Registry struct {
	repo  store.Repository
	cache *gocache.Cache
}

// New creates a registry with the given cache TTL.
func New(repo store.Repository, ttl time.Duration) *Registry {
	return &Registry{
		repo:  repo,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// LookupOrCreateVehicle resolves a plate to a vehicle record. Plates are
// normalized to uppercase without spaces. When the plate is unknown a
// deterministic simulated record is generated and persisted, so repeated
// lookups for the same plate agree.
func (r *Registry) LookupOrCreateVehicle(ctx context.Context, plate string) (*domain.Vehicle, error) {
	plate = NormalizePlate(plate)
	if plate == "" {
		return nil, fmt.Errorf("empty plate")
	}

	if cached, ok := r.cache.Get("vehicle:" + plate); ok {
		return cached.(*domain.Vehicle), nil
	}

	v, err := r.repo.GetVehicle(ctx, plate)
	if err != nil {
		return nil, fmt.Errorf("lookup vehicle %s: %w", plate, err)
	}
	if v == nil {
		v = simulateVehicle(plate)
		if err := r.repo.UpsertVehicle(ctx, v); err != nil {
			return nil, fmt.Errorf("persist vehicle %s: %w", plate, err)
		}
	}

	r.cache.SetDefault("vehicle:"+plate, v)
	return v, nil
}

// AnyDriver returns some driver from the registry, seeding a small pool
// when the table is empty.
func (r *Registry) AnyDriver(ctx context.Context) (*domain.Driver, error) {
	if cached, ok := r.cache.Get("driver:any"); ok {
		return cached.(*domain.Driver), nil
	}

	d, err := r.repo.AnyDriver(ctx)
	if err != nil {
		return nil, fmt.Errorf("lookup driver: %w", err)
	}
	if d == nil {
		if err := r.SeedDrivers(ctx, 5); err != nil {
			return nil, err
		}
		d, err = r.repo.AnyDriver(ctx)
		if err != nil {
			return nil, fmt.Errorf("lookup driver after seed: %w", err)
		}
	}

	if d != nil {
		r.cache.SetDefault("driver:any", d)
	}
	return d, nil
}

// SeedVehicles persists n simulated vehicles with generated plates.
func (r *Registry) SeedVehicles(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		plate := fmt.Sprintf("%c%03d%c%c", randomLetter(), rand.Intn(1000), randomLetter(), randomLetter())
		v := simulateVehicle(plate)
		if err := r.repo.UpsertVehicle(ctx, v); err != nil {
			return fmt.Errorf("seed vehicle %s: %w", plate, err)
		}
	}
	return nil
}

// SeedDrivers persists n simulated drivers.
func (r *Registry) SeedDrivers(ctx context.Context, n int) error {
	categories := []string{"B", "C", "D", "BE", "CE"}
	for i := 0; i < n; i++ {
		d := &domain.Driver{
			DriverID:        uuid.New().String(),
			Name:            driverNames[rand.Intn(len(driverNames))],
			LicenseCategory: categories[rand.Intn(len(categories))],
			YearsExperience: 1 + rand.Intn(30),
			RiskFactor:      float64(rand.Intn(90)+10) / 100.0,
		}
		if err := r.repo.InsertDriver(ctx, d); err != nil {
			return fmt.Errorf("seed driver: %w", err)
		}
	}
	return nil
}

// NormalizePlate uppercases a plate and strips internal whitespace.
func NormalizePlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	return strings.ReplaceAll(plate, " ", "")
}

// simulateVehicle derives a stable fake registry record from the plate, so
// two lookups of the same unknown plate yield the same vehicle.
func simulateVehicle(plate string) *domain.Vehicle {
	h := fnv.New64a()
	h.Write([]byte(plate))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	entry := carCatalog[rng.Intn(len(carCatalog))]
	vin := make([]byte, 17)
	for i := range vin {
		vin[i] = vinAlphabet[rng.Intn(len(vinAlphabet))]
	}

	return &domain.Vehicle{
		Plate:     plate,
		Brand:     entry.Brand,
		Model:     entry.Models[rng.Intn(len(entry.Models))],
		Year:      2008 + rng.Intn(17),
		Color:     carColors[rng.Intn(len(carColors))],
		VIN:       string(vin),
		CreatedAt: time.Now(),
	}
}

func randomLetter() byte {
	return byte('A' + rand.Intn(26))
}

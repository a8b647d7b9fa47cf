package salon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Seed is a JSON description of salons used to populate the in-memory store
// for local runs and demos.
type Seed struct {
	Businesses []SeedBusiness `json:"businesses" validate:"required,min=1,dive"`
}

type SeedBusiness struct {
	ID          string           `json:"id" validate:"required"`
	Name        string           `json:"name" validate:"required"`
	Phone       string           `json:"phone" validate:"required,e164"`
	Timezone    string           `json:"timezone"`
	Hours       WeeklyHours      `json:"hours"`
	Services    []SeedService    `json:"services" validate:"dive"`
	Technicians []SeedTechnician `json:"technicians" validate:"dive"`
}

type SeedService struct {
	ID              string `json:"id" validate:"required"`
	Name            string `json:"name" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	PriceCents      int    `json:"price_cents" validate:"gte=0"`
}

type SeedTechnician struct {
	ID        string      `json:"id" validate:"required"`
	FirstName string      `json:"first_name" validate:"required"`
	LastName  string      `json:"last_name"`
	Skills    []string    `json:"skills"`
	Schedule  WeeklyHours `json:"schedule"`
}

// LoadSeedFile reads and validates a seed file.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("salon: open seed: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}

// DecodeSeed parses a seed and checks that every skill names a service of
// the same business and every hours entry is a valid clock range.
func DecodeSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("salon: decode seed: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(seed); err != nil {
		return nil, fmt.Errorf("salon: invalid seed: %w", err)
	}

	var errs []error
	for _, b := range seed.Businesses {
		if err := checkHours(b.Hours); err != nil {
			errs = append(errs, fmt.Errorf("business %s hours: %w", b.ID, err))
		}
		offered := make(map[string]bool, len(b.Services))
		for _, s := range b.Services {
			offered[s.ID] = true
		}
		for _, t := range b.Technicians {
			if err := checkHours(t.Schedule); err != nil {
				errs = append(errs, fmt.Errorf("technician %s schedule: %w", t.ID, err))
			}
			for _, skill := range t.Skills {
				if !offered[skill] {
					errs = append(errs, fmt.Errorf("technician %s: unknown service %q", t.ID, skill))
				}
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("salon: invalid seed: %w", err)
	}
	return &seed, nil
}

// Apply loads the seeded salons into repo.
func (s *Seed) Apply(repo *InMemoryRepository) {
	for _, b := range s.Businesses {
		repo.AddBusiness(Business{ID: b.ID, Name: b.Name, Phone: b.Phone, Timezone: b.Timezone, Hours: b.Hours})
		for _, svc := range b.Services {
			repo.AddService(Service{
				ID:              svc.ID,
				BusinessID:      b.ID,
				Name:            svc.Name,
				DurationMinutes: svc.DurationMinutes,
				PriceCents:      svc.PriceCents,
			})
		}
		for _, t := range b.Technicians {
			repo.AddTechnician(Technician{
				ID:         t.ID,
				BusinessID: b.ID,
				FirstName:  t.FirstName,
				LastName:   t.LastName,
				Skills:     t.Skills,
				Schedule:   t.Schedule,
			})
		}
	}
}

func checkHours(w WeeklyHours) error {
	for day := time.Sunday; day <= time.Saturday; day++ {
		h := w.ForDay(day)
		if h == nil {
			continue
		}
		open, err := ParseClock(h.Open)
		if err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
		closing, err := ParseClock(h.Close)
		if err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
		if closing <= open {
			return fmt.Errorf("%s: close %s is not after open %s", day, h.Close, h.Open)
		}
	}
	return nil
}

// Package directory is the read-only doctor directory: search for the
// presentation layer and working-day templates for the availability engine.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-availability/internal/schedule"
)

var ErrDoctorNotFound = schedule.ErrDoctorNotFound

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty string
	Hospital  string
	Fee       decimal.Decimal

	// per-doctor working day; nil fields fall back to the clinic default
	DayStart    *schedule.Clock
	DayEnd      *schedule.Clock
	SlotMinutes *int

	CreatedAt time.Time
	RetiredAt *time.Time
}

// Listed reports whether the doctor still takes part in search and scheduling.
func (d Doctor) Listed() bool { return d.RetiredAt == nil }

// Repository lists doctors in the directory's natural order. Implementations
// may return retired doctors; the service drops them.
type Repository interface {
	List(ctx context.Context) ([]Doctor, error)
	Get(ctx context.Context, id uuid.UUID) (*Doctor, error)
}

type Filter struct {
	Specialty string
	Name      string
}

func (f Filter) matches(d Doctor) bool {
	return containsFold(d.Specialty, f.Specialty) && containsFold(d.Name, f.Name)
}

func containsFold(s, sub string) bool {
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

type Service struct {
	repo     Repository
	fallback schedule.Template
}

func NewService(repo Repository, fallback schedule.Template) *Service {
	return &Service{repo: repo, fallback: fallback}
}

// FindDoctors keeps the repository order, so equal inputs give equal output.
func (s *Service) FindDoctors(ctx context.Context, f Filter) ([]Doctor, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	out := make([]Doctor, 0, len(all))
	for _, d := range all {
		if d.Listed() && f.matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	if !d.Listed() {
		return nil, fmt.Errorf("%w: %s retired", ErrDoctorNotFound, id)
	}
	return d, nil
}

// WorkingDay implements schedule.TemplateSource.
func (s *Service) WorkingDay(ctx context.Context, id uuid.UUID) (schedule.Template, error) {
	d, err := s.GetDoctor(ctx, id)
	if err != nil {
		return schedule.Template{}, err
	}
	return s.templateFor(*d), nil
}

func (s *Service) templateFor(d Doctor) schedule.Template {
	t := s.fallback
	if d.DayStart != nil {
		t.DayStart = *d.DayStart
	}
	if d.DayEnd != nil {
		t.DayEnd = *d.DayEnd
	}
	if d.SlotMinutes != nil {
		t.SlotLength = time.Duration(*d.SlotMinutes) * time.Minute
	}
	return t
}

package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-availability/internal/audit"
	redisclient "github.com/hackgods/clinic-availability/internal/redis"
)

// ApplyRecurring expands req over its date range. Slots holding an active
// appointment are skipped and reported, never overwritten; one skipped slot
// does not stop the rest of its date or any other date. A storage failure
// aborts the run and returns what was applied so far alongside the error.
func (s *Service) ApplyRecurring(ctx context.Context, req RecurringRequest) (RecurringResult, error) {
	var res RecurringResult

	wanted := make(map[time.Weekday]bool, len(req.Weekdays))
	for _, wd := range req.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return res, fmt.Errorf("%w: %d", ErrInvalidWeekday, wd)
		}
		wanted[wd] = true
	}
	if len(wanted) == 0 || req.EndDate.Before(req.StartDate) {
		return res, nil
	}
	if days := req.StartDate.DaysUntil(req.EndDate) + 1; days > s.maxDays {
		return res, fmt.Errorf("%w: %d days, limit %d", ErrRangeTooLong, days, s.maxDays)
	}

	tmpl, err := s.templates.WorkingDay(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return res, err
		}
		return res, fmt.Errorf("load working day: %w", err)
	}
	if err := validateAssignments(tmpl, req.Assignments); err != nil {
		return res, err
	}
	if len(req.Assignments) == 0 {
		return res, nil
	}

	for d := req.StartDate; !d.After(req.EndDate); d = d.AddDays(1) {
		if !wanted[d.Weekday()] {
			continue
		}

		applied, skipped, err := s.applyDate(ctx, req, d)
		res.SkippedSlots = append(res.SkippedSlots, skipped...)
		if err != nil {
			return res, fmt.Errorf("apply pattern on %s: %w", d, err)
		}
		if applied {
			res.AppliedDates = append(res.AppliedDates, d)
		}
	}

	for _, sk := range res.SkippedSlots {
		s.metrics.AddRecurringSkip(string(sk.Reason))
	}
	if len(res.SkippedSlots) > 0 {
		s.log.Info("recurring pattern partially applied",
			zap.Stringer("doctor_id", req.DoctorID),
			zap.Int("applied_dates", len(res.AppliedDates)),
			zap.Int("skipped_slots", len(res.SkippedSlots)),
		)
	}

	s.audit.Record(ctx, audit.EventRecurringApplied, req.DoctorID, nil, map[string]any{
		"start_date":          req.StartDate.String(),
		"end_date":            req.EndDate.String(),
		"days_updated_count":  len(res.AppliedDates),
		"skipped_slots_count": len(res.SkippedSlots),
	})

	return res, nil
}

func validateAssignments(tmpl Template, assignments []SlotUpdate) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	seen := make(map[Clock]bool, len(assignments))
	for _, a := range assignments {
		if !a.Type.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidSlotType, a.Type)
		}
		if seen[a.StartTime] {
			return fmt.Errorf("%w: %s", ErrDuplicateStartTime, a.StartTime)
		}
		seen[a.StartTime] = true
		if !tmpl.HasBoundary(a.StartTime) {
			return fmt.Errorf("%w: %s", ErrIntervalMismatch, a.StartTime)
		}
	}
	return nil
}

func (s *Service) applyDate(ctx context.Context, req RecurringRequest, date Date) (bool, []SkippedSlot, error) {
	day, err := s.GetDaySlots(ctx, req.DoctorID, date)
	if err != nil {
		return false, nil, err
	}
	present := make(map[Clock]bool, len(day))
	for _, sl := range day {
		present[sl.StartTime] = true
	}

	var skipped []SkippedSlot
	todo := make([]SlotUpdate, 0, len(req.Assignments))
	keys := make([]string, 0, len(req.Assignments))
	for _, a := range req.Assignments {
		if !present[a.StartTime] {
			skipped = append(skipped, SkippedSlot{Date: date, StartTime: a.StartTime, Reason: SkipNoSuchInterval})
			continue
		}
		todo = append(todo, a)
		keys = append(keys, SlotKey{DoctorID: req.DoctorID, Date: date, StartTime: a.StartTime}.LockKey())
	}
	if len(todo) == 0 {
		return false, skipped, nil
	}

	applied := false
	err = s.locker.WithSlotLocks(ctx, keys, func(lockCtx context.Context) error {
		occupied, err := s.occupancy.OccupiedStartTimes(lockCtx, req.DoctorID, date)
		if err != nil {
			return fmt.Errorf("load occupancy: %w", err)
		}

		write := make([]SlotUpdate, 0, len(todo))
		for _, u := range todo {
			if occupied[u.StartTime] {
				skipped = append(skipped, SkippedSlot{Date: date, StartTime: u.StartTime, Reason: SkipHasAppointment})
				continue
			}
			write = append(write, u)
		}
		if len(write) == 0 {
			return nil
		}

		if err := s.store.SetSlotTypes(lockCtx, req.DoctorID, date, write); err != nil {
			return err
		}
		s.metrics.AddSlotEdits(len(write))
		applied = true
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		for _, u := range todo {
			skipped = append(skipped, SkippedSlot{Date: date, StartTime: u.StartTime, Reason: SkipSlotBusy})
		}
		return false, skipped, nil
	}
	if err != nil {
		return false, skipped, err
	}

	return applied, skipped, nil
}

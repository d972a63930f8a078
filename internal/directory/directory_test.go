package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-availability/internal/schedule"
)

type mockRepo struct {
	doctors []Doctor
	err     error
}

func (m *mockRepo) List(ctx context.Context) ([]Doctor, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]Doctor(nil), m.doctors...), nil
}

func (m *mockRepo) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, d := range m.doctors {
		if d.ID == id {
			d := d
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func fallback() schedule.Template {
	return schedule.Template{
		DayStart:   schedule.NewClock(9, 0),
		DayEnd:     schedule.NewClock(17, 0),
		SlotLength: 30 * time.Minute,
	}
}

func seeded() *mockRepo {
	mk := func(name, specialty string) Doctor {
		return Doctor{ID: uuid.New(), Name: name, Specialty: specialty, Hospital: "St. Mary", Fee: decimal.RequireFromString("150.00")}
	}
	return &mockRepo{doctors: []Doctor{
		mk("Dr. Priya Raman", "Cardiology"),
		mk("Dr. Tomas Berg", "Dermatology"),
		mk("Dr. Lena Cardoso", "Pediatric Cardiology"),
		mk("Dr. Omar Haddad", "Neurology"),
		mk("Dr. Jin Park", "cardiology"),
	}}
}

func names(ds []Doctor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Name)
	}
	return out
}

func TestFindDoctors(t *testing.T) {
	svc := NewService(seeded(), fallback())
	ctx := context.Background()

	cases := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty filter returns all", Filter{}, []string{"Dr. Priya Raman", "Dr. Tomas Berg", "Dr. Lena Cardoso", "Dr. Omar Haddad", "Dr. Jin Park"}},
		{"specialty substring any case", Filter{Specialty: "CARDIO"}, []string{"Dr. Priya Raman", "Dr. Lena Cardoso", "Dr. Jin Park"}},
		{"name substring", Filter{Name: "park"}, []string{"Dr. Jin Park"}},
		{"both filters", Filter{Specialty: "cardiology", Name: "lena"}, []string{"Dr. Lena Cardoso"}},
		{"whitespace ignored", Filter{Specialty: "  ", Name: " "}, []string{"Dr. Priya Raman", "Dr. Tomas Berg", "Dr. Lena Cardoso", "Dr. Omar Haddad", "Dr. Jin Park"}},
		{"no match", Filter{Name: "house"}, []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.FindDoctors(ctx, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, names(got))
		})
	}
}

func TestFindDoctorsIsStable(t *testing.T) {
	svc := NewService(seeded(), fallback())
	ctx := context.Background()

	first, err := svc.FindDoctors(ctx, Filter{Specialty: "Cardiology"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := svc.FindDoctors(ctx, Filter{Specialty: "Cardiology"})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFindDoctorsRepositoryError(t *testing.T) {
	svc := NewService(&mockRepo{err: errors.New("timeout")}, fallback())

	_, err := svc.FindDoctors(context.Background(), Filter{})
	assert.Error(t, err)
}

func TestGetDoctor(t *testing.T) {
	repo := seeded()
	svc := NewService(repo, fallback())

	d, err := svc.GetDoctor(context.Background(), repo.doctors[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Tomas Berg", d.Name)
	assert.True(t, d.Fee.Equal(decimal.NewFromInt(150)))

	_, err = svc.GetDoctor(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.ErrorIs(t, err, schedule.ErrDoctorNotFound)
}

func TestRetiredDoctorsLeaveTheDirectory(t *testing.T) {
	repo := seeded()
	retired := time.Date(2029, time.March, 1, 0, 0, 0, 0, time.UTC)
	repo.doctors[0].RetiredAt = &retired
	svc := NewService(repo, fallback())
	ctx := context.Background()

	all, err := svc.FindDoctors(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, len(repo.doctors)-1)
	for _, d := range all {
		assert.NotEqual(t, repo.doctors[0].ID, d.ID)
	}

	_, err = svc.GetDoctor(ctx, repo.doctors[0].ID)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	_, err = svc.WorkingDay(ctx, repo.doctors[0].ID)
	assert.ErrorIs(t, err, schedule.ErrDoctorNotFound)
}

func TestWorkingDay(t *testing.T) {
	repo := seeded()
	start, end, minutes := schedule.NewClock(8, 0), schedule.NewClock(12, 0), 20
	repo.doctors[0].DayStart = &start
	repo.doctors[0].DayEnd = &end
	repo.doctors[0].SlotMinutes = &minutes
	svc := NewService(repo, fallback())
	ctx := context.Background()

	custom, err := svc.WorkingDay(ctx, repo.doctors[0].ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.Template{DayStart: start, DayEnd: end, SlotLength: 20 * time.Minute}, custom)
	assert.Len(t, custom.Starts(), 12)

	def, err := svc.WorkingDay(ctx, repo.doctors[1].ID)
	require.NoError(t, err)
	assert.Equal(t, fallback(), def)

	_, err = svc.WorkingDay(ctx, uuid.New())
	assert.ErrorIs(t, err, schedule.ErrDoctorNotFound)
}

package booking

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-box-booking/internal/config"
	"github.com/hackgods/clinic-box-booking/internal/identity"
	redisclient "github.com/hackgods/clinic-box-booking/internal/redis"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

// memRepo is an in-memory Repository guarded by a mutex.
type memRepo struct {
	mu           sync.Mutex
	users        map[uuid.UUID]User
	boxes        map[uuid.UUID]Box
	reservations map[uuid.UUID]Reservation
	events       []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:        map[uuid.UUID]User{},
		boxes:        map[uuid.UUID]Box{},
		reservations: map[uuid.UUID]Reservation{},
	}
}

func (m *memRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *memRepo) GetBoxByID(ctx context.Context, id uuid.UUID) (*Box, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boxes[id]
	if !ok {
		return nil, ErrBoxNotFound
	}
	return &b, nil
}

func (m *memRepo) GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return &r, nil
}

func matches(f ReservationFilter, r Reservation) bool {
	switch {
	case f.PatientID != nil && *f.PatientID != r.PatientID:
		return false
	case f.DoctorID != nil && *f.DoctorID != r.DoctorID:
		return false
	case f.BoxID != nil && *f.BoxID != r.BoxID:
		return false
	case f.Date != nil && !schedule.SameDate(*f.Date, r.Date):
		return false
	case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status):
		return false
	}
	return true
}

func (m *memRepo) ListReservations(ctx context.Context, f ReservationFilter) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, r := range m.reservations {
		if matches(f, r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Reservation) int { return int(a.Start) - int(b.Start) })
	return out, nil
}

func (m *memRepo) CountReservations(ctx context.Context, f ReservationFilter) (int, error) {
	list, err := m.ListReservations(ctx, f)
	return len(list), err
}

func (m *memRepo) CreateReservation(ctx context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.reservations {
		if !other.Active() || !schedule.SameDate(other.Date, r.Date) {
			continue
		}
		if (other.DoctorID == r.DoctorID || other.BoxID == r.BoxID) && Overlaps(r.Start, r.End, other.Start, other.End) {
			return ErrScheduleConflict
		}
	}
	r.Version = 1
	m.reservations[r.ID] = *r
	return nil
}

func (m *memRepo) ApplyTransition(ctx context.Context, r *Reservation, expectedVersion int, box *Box) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reservations[r.ID].Version != expectedVersion {
		return ErrStaleVersion
	}
	if box != nil && m.boxes[box.ID].Version != box.Version {
		return ErrStaleVersion
	}
	r.Version = expectedVersion + 1
	m.reservations[r.ID] = *r
	if box != nil {
		box.Version++
		m.boxes[box.ID] = *box
	}
	return nil
}

func (m *memRepo) FindPastDue(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, r := range m.reservations {
		if r.Status == StatusConfirmed && r.EndsAt(cutoff.Location()).Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

type memSchedules struct {
	items []schedule.Schedule
}

func (s memSchedules) ListInEffect(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	for _, it := range s.items {
		if it.DoctorID == doctorID && it.InEffect(date) {
			out = append(out, it)
		}
	}
	return out, nil
}

// mutexLocker serialises every critical section regardless of keys.
type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type serviceFixture struct {
	svc     *Service
	repo    *memRepo
	doctor  User
	patient User
	box     Box
	admin   identity.Actor
}

func newServiceFixture(t *testing.T, locker redisclient.Locker) serviceFixture {
	t.Helper()
	repo := newMemRepo()

	doctor := User{ID: uuid.New(), Role: identity.RoleDoctor, FullName: "Dr. Ana Ruiz", Active: true}
	patient := User{ID: uuid.New(), Role: identity.RolePatient, FullName: "Luis Gomez", Active: true}
	box := openBox(t)
	repo.users[doctor.ID] = doctor
	repo.users[patient.ID] = patient
	repo.boxes[box.ID] = box

	schedules := memSchedules{items: []schedule.Schedule{mondayMorning(t, doctor.ID)}}
	svc := NewService(repo, schedules, locker, config.Config{Location: time.UTC}, nil, nil)
	svc.now = func() time.Time { return monday.Add(-24 * time.Hour) }

	return serviceFixture{
		svc:     svc,
		repo:    repo,
		doctor:  doctor,
		patient: patient,
		box:     box,
		admin:   identity.Actor{UserID: uuid.New(), Role: identity.RoleAdmin},
	}
}

func (f serviceFixture) request(t *testing.T, patient uuid.UUID, start string) Request {
	t.Helper()
	return Request{
		PatientID:       patient,
		DoctorID:        f.doctor.ID,
		BoxID:           f.box.ID,
		Date:            monday,
		Start:           clock(t, start),
		DurationMinutes: 30,
		AppointmentType: AppointmentConsultation,
	}
}

func (f serviceFixture) patientActor() identity.Actor {
	return identity.Actor{UserID: f.patient.ID, Role: identity.RolePatient}
}

func (f serviceFixture) doctorActor() identity.Actor {
	return identity.Actor{UserID: f.doctor.ID, Role: identity.RoleDoctor}
}

func TestServiceCreateReservation(t *testing.T) {
	f := newServiceFixture(t, &mutexLocker{})
	ctx := context.Background()

	res, err := f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "08:35"), f.patientActor())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, []string{EventReservationCreated}, f.repo.eventTypes())

	slots, err := f.svc.BookableSlots(ctx, f.doctor.ID, f.box.ID, monday)
	require.NoError(t, err)
	assert.NotContains(t, slots, clock(t, "08:35"))
	assert.Len(t, slots, 6)

	_, err = f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "08:35"), f.patientActor())
	assert.ErrorIs(t, err, ErrScheduleConflict)
}

func TestServiceCreateReservationAuthorization(t *testing.T) {
	f := newServiceFixture(t, &mutexLocker{})
	ctx := context.Background()

	other := identity.Actor{UserID: uuid.New(), Role: identity.RolePatient}
	_, err := f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "08:00"), other)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "08:00"), f.doctorActor())
	assert.ErrorIs(t, err, ErrForbidden)

	res, err := f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "08:00"), f.admin)
	require.NoError(t, err)
	assert.Equal(t, f.admin.UserID, res.CreatedBy)
}

func TestServiceCreateReservationUnknownParties(t *testing.T) {
	f := newServiceFixture(t, &mutexLocker{})
	ctx := context.Background()

	req := f.request(t, f.patient.ID, "08:00")
	req.DoctorID = f.patient.ID // not a doctor
	_, err := f.svc.CreateReservation(ctx, req, f.admin)
	assert.ErrorIs(t, err, ErrUserNotFound)

	req = f.request(t, f.patient.ID, "08:00")
	req.BoxID = uuid.New()
	_, err = f.svc.CreateReservation(ctx, req, f.admin)
	assert.ErrorIs(t, err, ErrBoxNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceCreateReservationBusy(t *testing.T) {
	f := newServiceFixture(t, busyLocker{})
	_, err := f.svc.CreateReservation(context.Background(), f.request(t, f.patient.ID, "08:00"), f.patientActor())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestServiceConcurrentDoubleBooking(t *testing.T) {
	f := newServiceFixture(t, &mutexLocker{})
	ctx := context.Background()

	const n = 12
	patients := make([]User, n)
	for i := range patients {
		patients[i] = User{ID: uuid.New(), Role: identity.RolePatient, FullName: "P", Active: true}
		f.repo.users[patients[i].ID] = patients[i]
	}

	reqs := make([]Request, n)
	for i := range reqs {
		reqs[i] = f.request(t, patients[i].ID, "09:10")
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := identity.Actor{UserID: patients[i].ID, Role: identity.RolePatient}
			_, errs[i] = f.svc.CreateReservation(ctx, reqs[i], actor)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrScheduleConflict)
	}
	assert.Equal(t, 1, ok)

	count, err := f.repo.CountReservations(ctx, ReservationFilter{DoctorID: &f.doctor.ID, Statuses: ActiveStatuses})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestServiceTransitionLifecycle(t *testing.T) {
	f := newServiceFixture(t, &mutexLocker{})
	ctx := context.Background()

	res, err := f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "08:00"), f.patientActor())
	require.NoError(t, err)

	_, err = f.svc.TransitionReservation(ctx, res.ID, StatusConfirmed, f.patientActor(), "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	confirmed, err := f.svc.TransitionReservation(ctx, res.ID, StatusConfirmed, f.doctorActor(), "")
	require.NoError(t, err)
	require.NotNil(t, confirmed.ConfirmationCode)
	assert.Len(t, *confirmed.ConfirmationCode, 8)
	assert.Equal(t, 2, confirmed.Version)

	box, err := f.repo.GetBoxByID(ctx, f.box.ID)
	require.NoError(t, err)
	assert.Equal(t, BoxReserved, box.Status)
	assert.True(t, box.HeldBy(res.ID))

	_, err = f.svc.TransitionReservation(ctx, res.ID, StatusInProgress, f.doctorActor(), "")
	require.NoError(t, err)
	done, err := f.svc.TransitionReservation(ctx, res.ID, StatusCompleted, f.doctorActor(), "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 0, *done.ActualDuration)

	box, err = f.repo.GetBoxByID(ctx, f.box.ID)
	require.NoError(t, err)
	assert.Equal(t, BoxAvailable, box.Status)
	assert.Nil(t, box.CurrentReservationID)

	_, err = f.svc.TransitionReservation(ctx, res.ID, StatusCancelled, f.admin, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []string{
		EventReservationCreated,
		EventReservationUpdated,
		EventReservationUpdated,
		EventReservationUpdated,
	}, f.repo.eventTypes())
}

func TestServiceCancelledSlotBecomesBookableAgain(t *testing.T) {
	f := newServiceFixture(t, &mutexLocker{})
	ctx := context.Background()

	res, err := f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "08:00"), f.patientActor())
	require.NoError(t, err)
	_, err = f.svc.TransitionReservation(ctx, res.ID, StatusCancelled, f.patientActor(), "conflict at work")
	require.NoError(t, err)

	slots, err := f.svc.BookableSlots(ctx, f.doctor.ID, f.box.ID, monday)
	require.NoError(t, err)
	assert.Contains(t, slots, clock(t, "08:00"))
}

func TestServiceSweepNoShows(t *testing.T) {
	f := newServiceFixture(t, &mutexLocker{})
	ctx := context.Background()

	early, err := f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "08:00"), f.patientActor())
	require.NoError(t, err)
	late, err := f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "11:30"), f.patientActor())
	require.NoError(t, err)
	pending, err := f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "09:10"), f.patientActor())
	require.NoError(t, err)

	for _, id := range []uuid.UUID{early.ID, late.ID} {
		_, err := f.svc.TransitionReservation(ctx, id, StatusConfirmed, f.admin, "")
		require.NoError(t, err)
	}

	f.svc.now = func() time.Time { return monday.Add(11 * time.Hour) }
	marked, err := f.svc.SweepNoShows(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	got, err := f.repo.GetReservationByID(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, got.Status)

	got, err = f.repo.GetReservationByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	got, err = f.repo.GetReservationByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	box, err := f.repo.GetBoxByID(ctx, f.box.ID)
	require.NoError(t, err)
	assert.False(t, box.HeldBy(early.ID))
}

func TestServiceDoctorAvailability(t *testing.T) {
	f := newServiceFixture(t, &mutexLocker{})
	ctx := context.Background()

	_, err := f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "10:20"), f.patientActor())
	require.NoError(t, err)

	av, err := f.svc.DoctorAvailability(ctx, f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Ana Ruiz", av.DoctorName)
	assert.Equal(t, 7, av.TotalSlots)
	assert.Equal(t, 1, av.BookedSlots)
	assert.Len(t, av.AvailableSlots, 6)
	assert.InDelta(t, 85.71, av.Percentage, 0.01)

	slots, err := f.svc.ResolveSchedule(ctx, f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 7)

	_, err = f.svc.ResolveSchedule(ctx, uuid.New(), monday)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceReservationVisibility(t *testing.T) {
	f := newServiceFixture(t, &mutexLocker{})
	ctx := context.Background()

	res, err := f.svc.CreateReservation(ctx, f.request(t, f.patient.ID, "08:00"), f.patientActor())
	require.NoError(t, err)

	_, err = f.svc.GetReservation(ctx, res.ID, f.patientActor())
	assert.NoError(t, err)
	_, err = f.svc.GetReservation(ctx, res.ID, f.doctorActor())
	assert.NoError(t, err)

	stranger := identity.Actor{UserID: uuid.New(), Role: identity.RolePatient}
	_, err = f.svc.GetReservation(ctx, res.ID, stranger)
	assert.ErrorIs(t, err, ErrReservationNotFound)

	list, err := f.svc.ListReservations(ctx, ReservationFilter{}, stranger)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.ListReservations(ctx, ReservationFilter{}, f.admin)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

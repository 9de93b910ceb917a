package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/domain/patient"
	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/notification"
	"github.com/medibook/medibook/internal/platform/payment"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingInvalidator) InvalidateList(context.Context) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// failingRepo refuses to record appointments.
type failingRepo struct {
	Repository
}

func (failingRepo) Create(context.Context, *Appointment) error {
	return errors.New("disk full")
}

type fixture struct {
	svc      *Service
	doctors  doctor.Store
	patients patient.Repository
	appts    Repository
	payments *payment.Fake
	lists    *recordingInvalidator
	mailer   *notification.MockEmailSender
}

func newFixture(t *testing.T, wrap ...func(Repository) Repository) *fixture {
	t.Helper()
	f := &fixture{
		doctors:  doctor.NewMemoryStore(),
		patients: patient.NewMemoryRepo(),
		appts:    NewMemoryRepo(),
		payments: payment.NewFake(),
		lists:    &recordingInvalidator{},
		mailer:   &notification.MockEmailSender{},
	}
	ctx := context.Background()
	require.NoError(t, f.doctors.Create(ctx, &doctor.Doctor{
		ID: "doc1", Name: "Dr. Richard James", Email: "richard@clinic.test", PasswordHash: "hash",
		Specialty: "General physician", Fees: 50, Available: true,
	}))
	require.NoError(t, f.doctors.Create(ctx, &doctor.Doctor{
		ID: "doc2", Name: "Dr. Emily Larson", Email: "emily@clinic.test", Fees: 60, Available: true,
	}))
	require.NoError(t, f.patients.Create(ctx, &patient.User{ID: "u1", Name: "Avery", Email: "avery@mail.test", PasswordHash: "secret-hash"}))
	require.NoError(t, f.patients.Create(ctx, &patient.User{ID: "u2", Name: "Blake", Email: "blake@mail.test"}))

	repo := f.appts
	for _, w := range wrap {
		repo = w(repo)
	}
	notifier := notification.NewNotifier(f.mailer, notification.NewTemplateEngine(), zerolog.Nop())
	f.svc = NewService(Deps{
		Appointments: repo,
		Doctors:      f.doctors,
		Patients:     f.patients,
		Ledger:       f.doctors,
		Lists:        f.lists,
		Payments:     f.payments,
		Currency:     "INR",
		Notifier:     notifier,
		Logger:       zerolog.Nop(),
	})
	return f
}

func (f *fixture) ledger(t *testing.T, docID string) doctor.Ledger {
	t.Helper()
	d, err := f.doctors.GetByID(context.Background(), docID)
	require.NoError(t, err)
	return d.SlotsBooked
}

func TestBookAndCancel_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00 AM"}, f.ledger(t, "doc1")["5_8_2024"])
	assert.False(t, a.Cancelled)
	assert.False(t, a.Payment)
	assert.False(t, a.IsCompleted)
	assert.Equal(t, 50.0, a.Amount)
	assert.Equal(t, "u1", a.UserData.ID)
	assert.Equal(t, "doc1", a.DocData.ID)
	assert.NotZero(t, a.Date)

	_, err = f.svc.Book(ctx, "u2", "doc1", "5_8_2024", "10:00 AM")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Len(t, f.ledger(t, "doc1")["5_8_2024"], 1)

	require.NoError(t, f.svc.Cancel(ctx, "u1", a.ID))
	times, present := f.ledger(t, "doc1")["5_8_2024"]
	assert.True(t, present, "date key stays after its last time is released")
	assert.Empty(t, times)

	stored, err := f.appts.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Cancelled)

	b, err := f.svc.Book(ctx, "u2", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)
	assert.Equal(t, "u2", b.UserID)
}

func TestBook_SnapshotsAreLean(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.doctors.ReserveSlot(ctx, "doc1", "1_1_2030", "09:00 AM"))

	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Richard James", a.DocData.Name)
	assert.Equal(t, "General physician", a.DocData.Specialty)
	assert.Equal(t, "avery@mail.test", a.UserData.Email)
	assert.Equal(t, 50.0, a.DocData.Fees)
}

func TestBook_CanonicalizesTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "14:30")
	require.NoError(t, err)
	assert.Equal(t, "02:30 PM", a.SlotTime)

	_, err = f.svc.Book(ctx, "u2", "doc1", "5_8_2024", "2:30 pm")
	assert.ErrorIs(t, err, ErrSlotUnavailable, "equivalent spellings are the same slot")
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, "u1", "doc1", "05_08_2024", "10:00 AM")
	assert.ErrorIs(t, err, ErrInvalidSlotDate)

	_, err = f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "later")
	assert.ErrorIs(t, err, ErrInvalidSlotTime)

	_, err = f.svc.Book(ctx, "u1", "", "5_8_2024", "10:00 AM")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.Empty(t, f.ledger(t, "doc1"))
}

func TestBook_DoctorUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.doctors.ToggleAvailability(ctx, "doc1")
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	assert.ErrorIs(t, err, ErrDoctorUnavailable)
	assert.Equal(t, "Doctor is not available", apperr.Message(err, ""))

	_, err = f.svc.Book(ctx, "u1", "ghost", "5_8_2024", "10:00 AM")
	assert.ErrorIs(t, err, ErrDoctorUnavailable)

	assert.Empty(t, f.ledger(t, "doc1"))
	n, _ := f.appts.Count(ctx)
	assert.Zero(t, n)
}

func TestBook_UnknownPatientReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, "ghost", "doc1", "5_8_2024", "10:00 AM")
	assert.ErrorIs(t, err, patient.ErrNotFound)
	assert.False(t, f.ledger(t, "doc1").Has("5_8_2024", "10:00 AM"))

	_, err = f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	assert.NoError(t, err, "slot must be bookable after the failed attempt")
}

func TestBook_PersistFailureReleasesReservation(t *testing.T) {
	f := newFixture(t, func(r Repository) Repository { return failingRepo{r} })
	ctx := context.Background()

	_, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.Error(t, err)
	assert.False(t, f.ledger(t, "doc1").Has("5_8_2024", "10:00 AM"))
	assert.Zero(t, f.lists.count(), "nothing changed, nothing to invalidate")
}

func TestBook_InvalidatesDoctorList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)
	assert.Equal(t, 1, f.lists.count())

	require.NoError(t, f.svc.Cancel(ctx, "u1", a.ID))
	assert.Equal(t, 2, f.lists.count())
}

func TestCancel_ForeignUserForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)

	err = f.svc.Cancel(ctx, "u2", a.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "You cannot cancel this appointment", apperr.Message(err, ""))

	stored, _ := f.appts.GetByID(ctx, a.ID)
	assert.False(t, stored.Cancelled)
	assert.True(t, f.ledger(t, "doc1").Has("5_8_2024", "10:00 AM"))
}

func TestCancel_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Cancel(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(ctx, "u1", a.ID))

	b, err := f.svc.Book(ctx, "u2", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, "u1", a.ID), "repeat cancel succeeds")
	assert.True(t, f.ledger(t, "doc1").Has("5_8_2024", "10:00 AM"),
		"repeat cancel must not release the slot now held by another booking")
	stored, _ := f.appts.GetByID(ctx, b.ID)
	assert.False(t, stored.Cancelled)
}

func TestAdminCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)

	require.NoError(t, f.svc.AdminCancel(ctx, a.ID))
	assert.False(t, f.ledger(t, "doc1").Has("5_8_2024", "10:00 AM"))
	assert.ErrorIs(t, f.svc.AdminCancel(ctx, "missing"), ErrNotFound)
}

func TestDoctorCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DoctorCancel(ctx, "doc2", a.ID), ErrForbidden)
	assert.True(t, f.ledger(t, "doc1").Has("5_8_2024", "10:00 AM"))

	require.NoError(t, f.svc.DoctorCancel(ctx, "doc1", a.ID))
	assert.False(t, f.ledger(t, "doc1").Has("5_8_2024", "10:00 AM"))
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Complete(ctx, "doc2", a.ID), ErrNotOwner)
	require.NoError(t, f.svc.Complete(ctx, "doc1", a.ID))
	stored, _ := f.appts.GetByID(ctx, a.ID)
	assert.True(t, stored.IsCompleted)

	c, err := f.svc.Book(ctx, "u2", "doc1", "6_8_2024", "10:00 AM")
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(ctx, "u2", c.ID))
	assert.ErrorIs(t, f.svc.Complete(ctx, "doc1", c.ID), ErrCancelled)
}

func TestBook_ConcurrentDistinctTimes(t *testing.T) {
	f := newFixture(t)
	const n = 24

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot := fmt.Sprintf("%02d:%02d", 8+i/2, (i%2)*30)
			_, errs[i] = f.svc.Book(context.Background(), "u1", "doc1", "5_8_2024", slot)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "booking %d", i)
	}
	times := f.ledger(t, "doc1")["5_8_2024"]
	assert.Len(t, times, n)
	seen := map[string]bool{}
	for _, tm := range times {
		assert.False(t, seen[tm], "duplicate %s", tm)
		seen[tm] = true
	}
	all, _ := f.svc.ListForUser(context.Background(), "u1")
	assert.Len(t, all, n)
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	const n = 12

	var wg sync.WaitGroup
	var mu sync.Mutex
	var booked, rejected int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), "u1", "doc1", "5_8_2024", "10:00 AM")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case errors.Is(err, ErrSlotUnavailable):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, booked)
	assert.Equal(t, n-1, rejected)
	assert.Len(t, f.ledger(t, "doc1")["5_8_2024"], 1)
}

func TestPayment_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)

	order, err := f.svc.CreatePaymentOrder(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), order.Amount)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, a.ID, order.Receipt)

	err = f.svc.VerifyPayment(ctx, "u1", order.ID)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)
	assert.Equal(t, "Payment Failed", apperr.Message(err, ""))

	require.NoError(t, f.payments.MarkPaid(order.ID))
	require.NoError(t, f.svc.VerifyPayment(ctx, "u1", order.ID))
	stored, _ := f.appts.GetByID(ctx, a.ID)
	assert.True(t, stored.Payment)

	_, err = f.svc.CreatePaymentOrder(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestPayment_CancelledAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)
	order, err := f.svc.CreatePaymentOrder(ctx, "u1", a.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(ctx, "u1", a.ID))

	_, err = f.svc.CreatePaymentOrder(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, ErrNotPayable)
	assert.Equal(t, "Appointment cancelled or not found", apperr.Message(err, ""))

	require.NoError(t, f.payments.MarkPaid(order.ID))
	assert.ErrorIs(t, f.svc.VerifyPayment(ctx, "u1", order.ID), ErrNotPayable)
	stored, _ := f.appts.GetByID(ctx, a.ID)
	assert.False(t, stored.Payment, "cancelled appointments are never marked paid")

	_, err = f.svc.CreatePaymentOrder(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrNotPayable)
}

func TestPayment_OwnershipAndProviderErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)

	_, err = f.svc.CreatePaymentOrder(ctx, "u2", a.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	assert.ErrorIs(t, f.svc.VerifyPayment(ctx, "u1", "order_missing"), ErrOrderUnknown)

	f.payments.FailWith = errors.New("connection reset")
	_, err = f.svc.CreatePaymentOrder(ctx, "u1", a.ID)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
}

func TestDashboards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, time.August, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	f.svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	var ids []string
	for i, slot := range []string{"09:00 AM", "09:30 AM", "10:00 AM", "10:30 AM", "11:00 AM", "11:30 AM"} {
		user := "u1"
		if i%2 == 1 {
			user = "u2"
		}
		a, err := f.svc.Book(ctx, user, "doc1", "5_8_2024", slot)
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	require.NoError(t, f.svc.Complete(ctx, "doc1", ids[0]))

	dash, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.Doctors)
	assert.Equal(t, 2, dash.Patients)
	assert.Equal(t, 6, dash.Appointments)
	require.Len(t, dash.LatestAppointments, 5)
	assert.Equal(t, ids[5], dash.LatestAppointments[0].ID, "newest first")

	docDash, err := f.svc.DoctorDashboard(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, docDash.Earnings)
	assert.Equal(t, 6, docDash.Appointments)
	assert.Equal(t, 2, docDash.Patients)
	assert.Len(t, docDash.LatestAppointments, 5)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Book(ctx, "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(ctx, "u1", a.ID))

	assert.Eventually(t, func() bool { return len(f.mailer.Calls()) == 2 }, time.Second, 10*time.Millisecond)
	for _, call := range f.mailer.Calls() {
		assert.Equal(t, "avery@mail.test", call.To)
		assert.Contains(t, call.Body, "5 Aug 2024")
		assert.Contains(t, call.Body, "Dr. Richard James")
	}
}

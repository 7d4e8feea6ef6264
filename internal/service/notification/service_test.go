package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/repository/memory"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/messaging"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

type sentMail struct {
	to      string
	subject string
}

type emailStub struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (e *emailStub) SendCustom(_ context.Context, to, subject, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, sentMail{to: to, subject: subject})
	return nil
}

func (e *emailStub) recipients() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.sent))
	for _, m := range e.sent {
		out = append(out, m.to)
	}
	return out
}

func (e *emailStub) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = nil
}

func (e *emailStub) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent)
}

type fixture struct {
	store   *memory.Store
	svc     *Service
	email   *emailStub
	broker  *messaging.LocalBroker
	metrics *metrics.Metrics
	org     *model.Organization
	user    *model.User
	admin   *model.User
	apt     *model.Appointment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:   store,
		email:   &emailStub{},
		broker:  messaging.NewLocalBroker(16),
		metrics: metrics.NewForTest(),
	}
	t.Cleanup(func() { _ = f.broker.Close() })

	f.org = &model.Organization{
		Base:                   model.Base{ID: uuid.New()},
		Name:                   "clinic",
		EmailNotification:      true,
		NewBookingNotification: true,
	}
	orgID := f.org.ID
	f.user = &model.User{
		Base:                     model.Base{ID: uuid.New()},
		Name:                     "Asha",
		Email:                    "asha@example.com",
		Role:                     model.UserRoleCustomer,
		EmailNotificationEnabled: true,
		NotificationEnabled:      true,
	}
	f.admin = &model.User{
		Base:                model.Base{ID: uuid.New()},
		OrganizationID:      &orgID,
		Name:                "Front desk",
		Email:               "desk@example.com",
		Role:                model.UserRoleAdmin,
		NotificationEnabled: true,
	}
	svc := &model.Service{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: orgID,
		Name:           "consultation",
	}
	store.AddOrganization(f.org)
	store.AddUser(f.user)
	store.AddUser(f.admin)
	store.AddService(svc)

	f.apt = &model.Appointment{
		ID:             uuid.New(),
		OrganizationID: orgID,
		ServiceID:      svc.ID,
		UserID:         f.user.ID,
		Status:         model.AppointmentStatusConfirmed,
		TokenNumber:    "TKN-20260101-ABCDEF",
	}
	f.rebuild()
	return f
}

func (f *fixture) rebuild() {
	f.store.AddOrganization(f.org)
	f.store.AddUser(f.user)
	f.svc = NewService(
		memory.NewIdentityRepository(f.store),
		memory.NewServiceRepository(f.store),
		memory.NewNotificationRepository(f.store),
		f.email, f.broker, f.metrics, logger.Nop(), time.Second,
	)
}

func (f *fixture) inbox(t *testing.T, userID uuid.UUID) []*model.Notification {
	t.Helper()
	list, err := f.svc.List(context.Background(), userID, 0)
	require.NoError(t, err)
	return list
}

func TestNotifyBookedReachesCustomerAndAdmins(t *testing.T) {
	f := newFixture(t)
	sub, err := f.broker.Subscribe(context.Background(), Channel)
	require.NoError(t, err)

	f.svc.NotifyBooked(f.apt)
	f.svc.Wait()

	require.Equal(t, 1, f.email.count())
	assert.Equal(t, "asha@example.com", f.email.sent[0].to)

	customer := f.inbox(t, f.user.ID)
	require.Len(t, customer, 1)
	assert.Equal(t, model.NotificationTypeBooking, customer[0].Type)
	assert.Contains(t, customer[0].Message, f.apt.TokenNumber)

	admin := f.inbox(t, f.admin.ID)
	require.Len(t, admin, 1)
	assert.Contains(t, admin[0].Message, "Asha")

	var event InAppEvent
	select {
	case payload := <-sub:
		require.NoError(t, json.Unmarshal(payload, &event))
	case <-time.After(time.Second):
		t.Fatal("no in-app event published")
	}
	assert.Equal(t, model.NotificationTypeBooking, event.Type)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NotificationsSent.WithLabelValues(channelEmail)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.NotificationsSent.WithLabelValues(channelInApp)))
}

func TestNotifyRespectsPreferences(t *testing.T) {
	f := newFixture(t)
	f.org.EmailNotification = false
	f.org.NewBookingNotification = false
	f.user.NotificationEnabled = false
	f.rebuild()

	f.svc.NotifyBooked(f.apt)
	f.svc.Wait()

	assert.Zero(t, f.email.count())
	assert.Empty(t, f.inbox(t, f.user.ID))
	assert.Empty(t, f.inbox(t, f.admin.ID))
}

func TestNotifyCancelledReachesAdmins(t *testing.T) {
	f := newFixture(t)

	byUser := model.CancelledByUser
	f.apt.CancelledBy = &byUser
	f.svc.NotifyCancelled(f.apt)
	f.svc.Wait()

	assert.Len(t, f.inbox(t, f.user.ID), 1)
	admin := f.inbox(t, f.admin.ID)
	require.Len(t, admin, 1)
	assert.Equal(t, model.NotificationTypeCancellation, admin[0].Type)
	assert.Contains(t, admin[0].Message, "Asha cancelled")

	byAdmin := model.CancelledByAdmin
	f.apt.CancelledBy = &byAdmin
	f.svc.NotifyCancelled(f.apt)
	f.svc.Wait()
	assert.Len(t, f.inbox(t, f.admin.ID), 2)
}

func TestNotifyStatusChangedDescribesStatus(t *testing.T) {
	f := newFixture(t)

	f.svc.NotifyStatusChanged(f.apt, model.AppointmentStatusServing)
	f.svc.Wait()

	customer := f.inbox(t, f.user.ID)
	require.Len(t, customer, 1)
	assert.Contains(t, customer[0].Message, "being served")

	admin := f.inbox(t, f.admin.ID)
	require.Len(t, admin, 1)
	assert.Equal(t, model.NotificationTypeStatus, admin[0].Type)
	assert.Contains(t, admin[0].Message, "Asha")
}

func TestStaffEmailsGoToContactAndAdmins(t *testing.T) {
	f := newFixture(t)
	f.org.ContactEmail = "office@example.com"
	f.rebuild()

	f.svc.NotifyBooked(f.apt)
	f.svc.Wait()
	assert.ElementsMatch(t, []string{"asha@example.com", "office@example.com"}, f.email.recipients())

	f.email.reset()
	f.svc.NotifyStatusChanged(f.apt, model.AppointmentStatusCompleted)
	f.svc.Wait()
	assert.ElementsMatch(t, []string{"asha@example.com", "office@example.com", "desk@example.com"}, f.email.recipients())

	f.email.reset()
	byUser := model.CancelledByUser
	f.apt.CancelledBy = &byUser
	f.svc.NotifyCancelled(f.apt)
	f.svc.Wait()
	assert.ElementsMatch(t, []string{"asha@example.com", "office@example.com", "desk@example.com"}, f.email.recipients())
}

func TestStaffEmailSkipsAdminWhoIsTheContact(t *testing.T) {
	f := newFixture(t)
	f.org.ContactEmail = f.admin.Email
	f.rebuild()

	f.svc.NotifyStatusChanged(f.apt, model.AppointmentStatusNoShow)
	f.svc.Wait()
	assert.ElementsMatch(t, []string{"asha@example.com", "desk@example.com"}, f.email.recipients())
}

func TestStaffEmailNeedsOrganizationEmailSetting(t *testing.T) {
	f := newFixture(t)
	f.org.ContactEmail = "office@example.com"
	f.org.EmailNotification = false
	f.rebuild()

	f.svc.NotifyStatusChanged(f.apt, model.AppointmentStatusCompleted)
	f.svc.Wait()
	assert.Zero(t, f.email.count())
	assert.Len(t, f.inbox(t, f.admin.ID), 1, "in-app messages only follow the booking notification setting")
}

func TestEmailFailureIsCountedAndInAppStillSent(t *testing.T) {
	f := newFixture(t)
	f.email.err = errors.New("smtp down")

	f.svc.NotifyStatusChanged(f.apt, model.AppointmentStatusCompleted)
	f.svc.Wait()

	assert.Len(t, f.inbox(t, f.user.ID), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NotificationsFailed.WithLabelValues("status_changed")))
}

func TestUnknownUserFailsQuietly(t *testing.T) {
	f := newFixture(t)
	f.apt.UserID = uuid.New()

	f.svc.NotifyBooked(f.apt)
	f.svc.Wait()

	assert.Zero(t, f.email.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NotificationsFailed.WithLabelValues("booked")))
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	f.svc.NotifyStatusChanged(f.apt, model.AppointmentStatusCompleted)
	f.svc.Wait()

	list := f.inbox(t, f.user.ID)
	require.Len(t, list, 1)
	require.NoError(t, f.svc.MarkRead(context.Background(), f.user.ID, list[0].ID))
	assert.True(t, f.inbox(t, f.user.ID)[0].Read)

	assert.Error(t, f.svc.MarkRead(context.Background(), f.admin.ID, list[0].ID))
}

package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appointmenthandler "github.com/jwalitptl/queue-api/internal/handler/appointment"
	"github.com/jwalitptl/queue-api/internal/handler/health"
	notificationhandler "github.com/jwalitptl/queue-api/internal/handler/notification"
	slothandler "github.com/jwalitptl/queue-api/internal/handler/slot"
	"github.com/jwalitptl/queue-api/internal/email"
	"github.com/jwalitptl/queue-api/internal/middleware"
	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/internal/realtime"
	"github.com/jwalitptl/queue-api/internal/repository/memory"
	"github.com/jwalitptl/queue-api/internal/service/appointment"
	"github.com/jwalitptl/queue-api/internal/service/notification"
	"github.com/jwalitptl/queue-api/internal/service/queue"
	"github.com/jwalitptl/queue-api/internal/service/slot"
	"github.com/jwalitptl/queue-api/pkg/auth"
	"github.com/jwalitptl/queue-api/pkg/httputil"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/messaging"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Status string                `json:"status"`
	Code   int                   `json:"code"`
	Data   json.RawMessage       `json:"data"`
	Errors []httputil.FieldError `json:"errors"`
}

type apiFixture struct {
	t        *testing.T
	engine   *gin.Engine
	notifier *notification.Service
	jwt      *auth.JWTService
	orgID    uuid.UUID
	service  *model.Service
	resource *model.Resource
	slot     *model.Slot
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	require.NoError(t, middleware.RegisterValidators())

	store := memory.NewStore()
	m := metrics.NewForTest()
	log := logger.Nop()
	broker := messaging.NewLocalBroker(16)
	t.Cleanup(func() { _ = broker.Close() })

	jwtSvc, err := auth.NewJWTService("test-secret", "queue-api")
	require.NoError(t, err)

	f := &apiFixture{t: t, jwt: jwtSvc, orgID: uuid.New()}
	store.AddOrganization(&model.Organization{Base: model.Base{ID: f.orgID}, Name: "clinic"})
	f.service = &model.Service{
		Base:                 model.Base{ID: uuid.New()},
		OrganizationID:       f.orgID,
		Name:                 "consultation",
		QueueType:            model.QueueTypeStatic,
		QueueScope:           model.QueueScopePerResource,
		EstimatedServiceTime: 10,
	}
	store.AddService(f.service)
	f.resource = &model.Resource{
		Base:               model.Base{ID: uuid.New()},
		OrganizationID:     f.orgID,
		Name:               "room 1",
		ConcurrentCapacity: 2,
	}
	store.AddResource(f.resource)
	start := time.Now().Add(time.Hour).Truncate(time.Minute)
	f.slot = &model.Slot{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: f.orgID,
		ResourceID:     f.resource.ID,
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		MaxCapacity:    2,
		IsActive:       true,
	}
	store.AddSlot(f.slot)

	f.notifier = notification.NewService(
		memory.NewIdentityRepository(store),
		memory.NewServiceRepository(store),
		memory.NewNotificationRepository(store),
		email.NewLogService(log), broker, m, log, time.Second,
	)
	queueSvc := queue.NewService(
		store,
		memory.NewAppointmentRepository(store),
		memory.NewServiceRepository(store),
		memory.NewSlotRepository(store),
		realtime.NewNotifier(broker, "queue_updates", 64, m, log),
		m, log, queue.Config{},
	)
	appointmentSvc := appointment.NewService(store, memory.NewAppointmentRepository(store), queueSvc, f.notifier, m, log,
		appointment.Config{AdvanceOnAdmission: true})
	slotSvc := slot.NewService(memory.NewSlotRepository(store), memory.NewResourceRepository(store))

	r := NewRouter(middleware.NewAuthMiddleware(jwtSvc), Handlers{
		Appointment:  appointmenthandler.NewHandler(appointmentSvc),
		Slot:         slothandler.NewHandler(slotSvc),
		Notification: notificationhandler.NewHandler(f.notifier),
		Health:       health.NewHandler(nil),
	}, m, log, Config{})
	f.engine = r.Engine()
	return f
}

func (f *apiFixture) customerToken() (uuid.UUID, string) {
	id := uuid.New()
	token, err := f.jwt.GenerateAccessToken(id, nil, model.UserRoleCustomer, time.Hour)
	require.NoError(f.t, err)
	return id, token
}

func (f *apiFixture) adminToken() string {
	orgID := f.orgID
	token, err := f.jwt.GenerateAccessToken(uuid.New(), &orgID, model.UserRoleAdmin, time.Hour)
	require.NoError(f.t, err)
	return token
}

func (f *apiFixture) do(method, path, token string, body interface{}) (int, envelope) {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (f *apiFixture) book(token string) (int, envelope) {
	return f.do(http.MethodPost, "/api/v1/appointments", token, gin.H{
		"organization_id": f.orgID,
		"service_id":      f.service.ID,
		"resource_id":     f.resource.ID,
		"slot_id":         f.slot.ID,
	})
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	defer f.notifier.Wait()
	admin := f.adminToken()

	code, _ := f.book("")
	assert.Equal(t, http.StatusUnauthorized, code)

	_, first := f.customerToken()
	code, env := f.book(first)
	require.Equal(t, http.StatusCreated, code)
	var firstBooking model.Booking
	require.NoError(t, json.Unmarshal(env.Data, &firstBooking))
	assert.Equal(t, 1, firstBooking.QueueNumber)
	assert.Equal(t, model.AppointmentStatusServing, firstBooking.Appointment.Status)
	assert.Regexp(t, `^TKN-\d{8}-[0-9A-F]{6}$`, firstBooking.Appointment.TokenNumber)

	_, second := f.customerToken()
	code, env = f.book(second)
	require.Equal(t, http.StatusCreated, code)
	var secondBooking model.Booking
	require.NoError(t, json.Unmarshal(env.Data, &secondBooking))
	assert.Equal(t, 2, secondBooking.QueueNumber)
	assert.Equal(t, model.AppointmentStatusConfirmed, secondBooking.Appointment.Status)

	_, third := f.customerToken()
	code, _ = f.book(third)
	assert.Equal(t, http.StatusConflict, code)

	secondID := secondBooking.Appointment.ID.String()
	code, env = f.do(http.MethodGet, "/api/v1/appointments/"+secondID+"/queue", second, nil)
	require.Equal(t, http.StatusOK, code)
	var status model.QueueStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, 2, status.Rank)
	assert.Equal(t, 1, status.PeopleAhead)
	assert.Equal(t, 1, status.CurrentServingRank)

	code, _ = f.do(http.MethodGet, "/api/v1/appointments/"+secondID, first, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(http.MethodPatch, "/api/v1/admin/appointments/"+secondID+"/status", admin, gin.H{"status": "serving"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, env = f.do(http.MethodPatch, "/api/v1/admin/appointments/"+secondID+"/status", admin, gin.H{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "status", env.Errors[0].Field)

	firstID := firstBooking.Appointment.ID.String()
	code, _ = f.do(http.MethodPatch, "/api/v1/admin/appointments/"+firstID+"/status", admin, gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, code)

	code, env = f.do(http.MethodGet, "/api/v1/appointments/"+secondID+"/queue", second, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, model.AppointmentStatusServing, status.Status)
	assert.Equal(t, 2, status.CurrentServingRank)

	code, _ = f.do(http.MethodPost, "/api/v1/appointments/"+secondID+"/cancel", second, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(http.MethodPost, "/api/v1/appointments/"+secondID+"/cancel", second, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newAPIFixture(t)
	_, customer := f.customerToken()

	code, _ := f.do(http.MethodGet, "/api/v1/admin/appointments", customer, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := f.do(http.MethodGet, "/api/v1/admin/appointments", f.adminToken(), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Status)

	code, _ = f.do(http.MethodGet, "/api/v1/appointments", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSlotManagementOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.adminToken()
	start := f.slot.EndTime

	code, env := f.do(http.MethodPost, "/api/v1/admin/slots", admin, gin.H{
		"resource_id":  f.resource.ID,
		"start_time":   start,
		"end_time":     start.Add(30 * time.Minute),
		"max_capacity": 3,
	})
	assert.Equal(t, http.StatusBadRequest, code, "capacity above the resource's concurrent capacity")

	code, env = f.do(http.MethodPost, "/api/v1/admin/slots", admin, gin.H{
		"resource_id":  f.resource.ID,
		"start_time":   start,
		"end_time":     start.Add(30 * time.Minute),
		"max_capacity": 1,
	})
	require.Equal(t, http.StatusCreated, code)
	var created model.Slot
	require.NoError(t, json.Unmarshal(env.Data, &created))

	code, env = f.do(http.MethodGet, "/api/v1/organizations/"+f.orgID.String()+"/slots", "", nil)
	require.Equal(t, http.StatusOK, code)
	var available []model.AvailableSlot
	require.NoError(t, json.Unmarshal(env.Data, &available))
	assert.Len(t, available, 2)

	_, customer := f.customerToken()
	code, _ = f.book(customer)
	require.Equal(t, http.StatusCreated, code)

	code, _ = f.do(http.MethodDelete, "/api/v1/admin/slots/"+f.slot.ID.String(), admin, nil)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = f.do(http.MethodDelete, "/api/v1/admin/slots/"+created.ID.String(), admin, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(http.MethodDelete, "/api/v1/admin/slots/not-a-uuid", admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	f.notifier.Wait()
}

func TestHealthLive(t *testing.T) {
	f := newAPIFixture(t)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

package appointment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/internal/platform/middleware"
)

type server struct {
	*fixture
	e      *echo.Echo
	tokens *auth.TokenIssuer
}

func newServer(t *testing.T) *server {
	t.Helper()
	f := newFixture(t)
	s := &server{fixture: f, e: echo.New(), tokens: auth.NewTokenIssuer("appointment-test-secret", time.Hour)}
	s.e.HTTPErrorHandler = middleware.HTTPErrorHandler(zerolog.Nop())
	NewHandler(f.svc, NewAuditor(f.doctors, f.appts, zerolog.Nop())).RegisterRoutes(s.e.Group("/api"), s.tokens)
	return s
}

func (s *server) do(t *testing.T, method, path, header, subject string, role auth.Role, body string) (int, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if subject != "" {
		tok, err := s.tokens.Issue(subject, role)
		require.NoError(t, err)
		req.Header.Set(header, tok)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestHTTP_BookListCancel(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/api/user/book-appointment", "token", "u1", auth.RoleUser,
		`{"docId":"doc1","slotDate":"5_8_2024","slotTime":"10:00 AM"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Appointment booked", body["message"])
	id := body["appointment"].(map[string]interface{})["_id"].(string)

	code, body = s.do(t, http.MethodPost, "/api/user/book-appointment", "token", "u2", auth.RoleUser,
		`{"docId":"doc1","slotDate":"5_8_2024","slotTime":"10:00 AM"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Slot not available", body["message"])

	code, body = s.do(t, http.MethodGet, "/api/user/appointments", "token", "u1", auth.RoleUser, "")
	require.Equal(t, http.StatusOK, code)
	items := body["appointments"].([]interface{})
	require.Len(t, items, 1)
	userData := items[0].(map[string]interface{})["userData"].(map[string]interface{})
	_, hasPassword := userData["password"]
	assert.False(t, hasPassword)

	code, body = s.do(t, http.MethodPost, "/api/user/cancel-appointment", "token", "u2", auth.RoleUser,
		`{"appointmentId":"`+id+`"}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "You cannot cancel this appointment", body["message"])

	code, body = s.do(t, http.MethodPost, "/api/user/cancel-appointment", "token", "u1", auth.RoleUser,
		`{"appointmentId":"`+id+`"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Appointment cancelled", body["message"])
	assert.Empty(t, s.ledger(t, "doc1")["5_8_2024"])
}

func TestHTTP_BookUnavailableDoctor(t *testing.T) {
	s := newServer(t)
	_, err := s.doctors.ToggleAvailability(context.Background(), "doc1")
	require.NoError(t, err)

	code, body := s.do(t, http.MethodPost, "/api/user/book-appointment", "token", "u1", auth.RoleUser,
		`{"docId":"doc1","slotDate":"5_8_2024","slotTime":"10:00 AM"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Doctor is not available", body["message"])
}

func TestHTTP_RequiresUserToken(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/api/user/book-appointment", "", "", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Not Authorized Login Again", body["message"])

	code, _ = s.do(t, http.MethodPost, "/api/user/book-appointment", "atoken", auth.AdminSubject, auth.RoleAdmin,
		`{"docId":"doc1","slotDate":"5_8_2024","slotTime":"10:00 AM"}`)
	assert.Equal(t, http.StatusUnauthorized, code, "admin legacy header is not read on user routes")

	code, _ = s.do(t, http.MethodPost, "/api/user/book-appointment", echo.HeaderAuthorization, "", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestHTTP_DoctorRoutes(t *testing.T) {
	s := newServer(t)
	a, err := s.svc.Book(context.Background(), "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)

	code, body := s.do(t, http.MethodGet, "/api/doctor/appointments", "dtoken", "doc1", auth.RoleDoctor, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["appointments"], 1)

	code, _ = s.do(t, http.MethodPost, "/api/doctor/complete-appointment", "dtoken", "doc2", auth.RoleDoctor,
		`{"appointmentId":"`+a.ID+`"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodPost, "/api/doctor/complete-appointment", "dtoken", "doc1", auth.RoleDoctor,
		`{"appointmentId":"`+a.ID+`"}`)
	require.Equal(t, http.StatusOK, code, body)

	code, body = s.do(t, http.MethodGet, "/api/doctor/dashboard", "dtoken", "doc1", auth.RoleDoctor, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 50.0, body["dashData"].(map[string]interface{})["earnings"])
}

func TestHTTP_AdminRoutes(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	for _, slot := range []string{"09:00 AM", "09:30 AM", "10:00 AM"} {
		_, err := s.svc.Book(ctx, "u1", "doc1", "5_8_2024", slot)
		require.NoError(t, err)
	}

	code, body := s.do(t, http.MethodGet, "/api/admin/appointments?limit=2", "atoken", auth.AdminSubject, auth.RoleAdmin, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["appointments"], 2)
	page := body["pagination"].(map[string]interface{})
	assert.Equal(t, 3.0, page["total"])
	assert.Equal(t, true, page["has_more"])

	id := body["appointments"].([]interface{})[0].(map[string]interface{})["_id"].(string)
	code, _ = s.do(t, http.MethodPost, "/api/admin/cancel-appointment", "atoken", auth.AdminSubject, auth.RoleAdmin,
		`{"appointmentId":"`+id+`"}`)
	assert.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodGet, "/api/admin/dashboard", "atoken", auth.AdminSubject, auth.RoleAdmin, "")
	require.Equal(t, http.StatusOK, code)
	dash := body["dashData"].(map[string]interface{})
	assert.Equal(t, 2.0, dash["doctors"])
	assert.Equal(t, 3.0, dash["appointments"])

	code, body = s.do(t, http.MethodGet, "/api/admin/ledger-audit", "atoken", auth.AdminSubject, auth.RoleAdmin, "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["report"].(map[string]interface{})["findings"])

	code, _ = s.do(t, http.MethodGet, "/api/admin/dashboard", "dtoken", "doc1", auth.RoleDoctor, "")
	assert.Equal(t, http.StatusUnauthorized, code, "doctor legacy header is not read on admin routes")
}

func TestHTTP_PaymentFlow(t *testing.T) {
	s := newServer(t)
	a, err := s.svc.Book(context.Background(), "u1", "doc1", "5_8_2024", "10:00 AM")
	require.NoError(t, err)

	code, body := s.do(t, http.MethodPost, "/api/user/payment-razorpay", "token", "u1", auth.RoleUser,
		`{"appointmentId":"`+a.ID+`"}`)
	require.Equal(t, http.StatusOK, code, body)
	order := body["order"].(map[string]interface{})
	assert.Equal(t, 5000.0, order["amount"])
	orderID := order["id"].(string)

	code, body = s.do(t, http.MethodPost, "/api/user/verify-razorpay", "token", "u1", auth.RoleUser,
		`{"razorpay_order_id":"`+orderID+`"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Payment Failed", body["message"])

	require.NoError(t, s.payments.MarkPaid(orderID))
	code, body = s.do(t, http.MethodPost, "/api/user/verify-razorpay", "token", "u1", auth.RoleUser,
		`{"razorpay_order_id":"`+orderID+`"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Payment Successful", body["message"])
}

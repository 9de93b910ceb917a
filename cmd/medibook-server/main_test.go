package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medibook/medibook/internal/config"
	"github.com/medibook/medibook/internal/domain/appointment"
	"github.com/medibook/medibook/internal/domain/doctor"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:            "development",
		StoreDriver:    config.DriverMemory,
		JWTSecret:      "main-test-secret",
		TokenTTL:       time.Hour,
		AdminEmail:     "admin@medibook.test",
		AdminPassword:  "admin-password",
		CORSOrigins:    []string{"http://localhost:5173"},
		MediaDir:       t.TempDir(),
		MediaBaseURL:   "/media",
		Currency:       "INR",
		DoctorCacheTTL: time.Minute,
	}
}

func newTestApp(t *testing.T) (*app, *stores) {
	t.Helper()
	cfg := testConfig(t)
	st, err := openStores(context.Background(), cfg, zerolog.Nop(), false)
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	a, err := buildApp(context.Background(), cfg, st, zerolog.Nop())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(a.Close)
	return a, st
}

func serve(a *app, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := map[string]bool{"serve": false, "migrate": false, "audit-ledger": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}

	migrate, _, err := root.Find([]string{"migrate", "status"})
	if err != nil || migrate.Name() != "status" {
		t.Errorf("expected migrate status subcommand, got %v (%v)", migrate, err)
	}
}

func TestAuditLedgerCmd_SettleFlag(t *testing.T) {
	cmd := auditLedgerCmd()
	f := cmd.Flags().Lookup("settle")
	if f == nil {
		t.Fatal("expected --settle flag")
	}
	if f.DefValue != appointment.DefaultSettleDelay.String() {
		t.Errorf("expected default %s, got %s", appointment.DefaultSettleDelay, f.DefValue)
	}
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = "sqlite"
	if _, err := openStores(context.Background(), cfg, zerolog.Nop(), false); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestApp_Health(t *testing.T) {
	a, _ := newTestApp(t)
	rec := serve(a, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode(t, rec)["version"]; got != version {
		t.Errorf("expected version %q, got %v", version, got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestApp_UnknownRouteIsJSON(t *testing.T) {
	a, _ := newTestApp(t)
	rec := serve(a, http.MethodGet, "/api/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if decode(t, rec)["success"] != false {
		t.Error("expected success=false")
	}
}

func TestApp_AdminLoginThenBookingFlow(t *testing.T) {
	a, st := newTestApp(t)
	ctx := context.Background()
	if err := st.doctors.Create(ctx, &doctor.Doctor{
		ID: "doc1", Name: "Dr. Richard James", Email: "richard@clinic.test", Fees: 50, Available: true,
	}); err != nil {
		t.Fatalf("seed doctor: %v", err)
	}

	rec := serve(a, http.MethodPost, "/api/admin/login", `{"email":"admin@medibook.test","password":"admin-password"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	atoken, _ := decode(t, rec)["token"].(string)

	rec = serve(a, http.MethodPost, "/api/user/register", `{"name":"Avery","email":"avery@mail.test","password":"password123"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	utoken, _ := decode(t, rec)["token"].(string)

	rec = serve(a, http.MethodPost, "/api/user/book-appointment",
		`{"docId":"doc1","slotDate":"5_8_2024","slotTime":"10:00 AM"}`, map[string]string{"token": utoken})
	if rec.Code != http.StatusOK {
		t.Fatalf("book: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(a, http.MethodGet, "/api/doctor/list", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	doctors := decode(t, rec)["doctors"].([]interface{})
	booked := doctors[0].(map[string]interface{})["slots_booked"].(map[string]interface{})
	if times := booked["5_8_2024"].([]interface{}); len(times) != 1 || times[0] != "10:00 AM" {
		t.Errorf("expected the booked slot in the public list, got %v", booked)
	}

	rec = serve(a, http.MethodGet, "/api/admin/ledger-audit", "", map[string]string{"atoken": atoken})
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWriteReport(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := writeReport(cmd, &appointment.Report{Findings: []appointment.Finding{}}); err != nil {
		t.Fatalf("clean report: unexpected error %v", err)
	}
	if !strings.Contains(out.String(), `"findings": []`) {
		t.Errorf("expected findings in output, got %s", out.String())
	}

	err := writeReport(cmd, &appointment.Report{Findings: []appointment.Finding{
		{Kind: appointment.FindingStaleReservation, DoctorID: "doc1", SlotDate: "5_8_2024", SlotTime: "10:00 AM"},
	}})
	if err == nil || !strings.Contains(err.Error(), "1 inconsistencies") {
		t.Errorf("expected an inconsistency error, got %v", err)
	}
}

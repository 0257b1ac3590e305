package mockservice

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const eventsDefinition = `{
	"description": "A GET request to retrieve events",
	"providerState": "There are events",
	"request": {"method": "GET", "path": "/events", "headers": {"Accept": "application/json"}},
	"response": {"status": 200, "headers": {"Content-Type": "application/json; charset=utf-8"}, "body": {"type": "SearchView"}}
}`

type serviceFixture struct {
	t       *testing.T
	e       *echo.Echo
	service *MockService
	dir     string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	dir := t.TempDir()
	e := echo.New()
	service := SetupRoutes(e, &Config{
		Consumer:     "web",
		Provider:     "events",
		PactDir:      dir,
		WaitDelay:    5 * time.Millisecond,
		WaitDuration: 100 * time.Millisecond,
	})
	return &serviceFixture{t: t, e: e, service: service, dir: dir}
}

func (f *serviceFixture) admin(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(AdministrativeRequestHeader, "true")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *serviceFixture) getEvents() *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestMockService_Scenario(t *testing.T) {
	f := newServiceFixture(t)

	rec := f.admin(http.MethodPost, InteractionsPath, eventsDefinition)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.getEvents()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `{"type":"SearchView"}`, rec.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = f.admin(http.MethodGet, InteractionsVerificationPath, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.admin(http.MethodPost, PactPath, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	written, err := os.ReadFile(filepath.Join(f.dir, "web-events.json"))
	require.NoError(t, err)
	assert.Equal(t, rec.Body.Bytes(), written)
	assert.Equal(t, "There are events", gjson.GetBytes(written, "interactions.0.providerState").String())

	rec = f.admin(http.MethodDelete, InteractionsPath, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.getEvents()
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "No interaction found for GET /events. No interactions are registered. See logs for details.", rec.Body.String())

	rec = f.admin(http.MethodGet, InteractionsVerificationPath, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An unexpected request GET /events was seen by the mock provider service. See logs for details.", rec.Body.String())
}

func TestMockService_GetInteractions(t *testing.T) {
	f := newServiceFixture(t)
	f.admin(http.MethodPost, InteractionsPath, eventsDefinition)

	rec := f.admin(http.MethodGet, InteractionsPath, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "get", gjson.Get(rec.Body.String(), "interactions.0.request.method").String())
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "interactions.#").Int())
}

func TestMockService_InvalidInteraction(t *testing.T) {
	f := newServiceFixture(t)

	rec := f.admin(http.MethodPost, InteractionsPath, `{"description": "x", "request": {"method": "GET"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.service.Repository().Interactions())
}

func TestMockService_UnknownAdminAction(t *testing.T) {
	f := newServiceFixture(t)

	rec := f.admin(http.MethodPut, "/somewhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "The PUT request for path /somewhere, does not have a matching mock provider admin action.", rec.Body.String())
}

func TestMockService_Ready(t *testing.T) {
	f := newServiceFixture(t)

	rec := f.admin(http.MethodGet, ReadyPath, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMockService_Wait(t *testing.T) {
	f := newServiceFixture(t)
	f.admin(http.MethodPost, InteractionsPath, eventsDefinition)

	rec := f.admin(http.MethodGet, InteractionsWaitPath, "")
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)

	done := make(chan int)
	go func() {
		done <- f.admin(http.MethodGet, InteractionsWaitPath+"?count=1", "").Code
	}()
	f.getEvents()

	select {
	case code := <-done:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(time.Second):
		t.Fatal("wait did not return")
	}
}

func TestMockService_PactRequiresNames(t *testing.T) {
	e := echo.New()
	SetupRoutes(e, &Config{PactDir: t.TempDir()})
	f := &serviceFixture{t: t, e: e}

	rec := f.admin(http.MethodPost, PactPath, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.admin(http.MethodPost, PactPath, `{"consumer": {"name": "web"}, "provider": {"name": "events"}}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMockService_TestContext(t *testing.T) {
	f := newServiceFixture(t)

	req := httptest.NewRequest(http.MethodGet, ReadyPath, nil)
	req.Header.Set(AdministrativeRequestHeader, "true")
	req.Header.Set(AdministrativeRequestTestContextHeader, "TestMockService_TestContext")
	f.e.ServeHTTP(httptest.NewRecorder(), req)

	assert.False(t, f.service.Repository().SetTestContext("Other"))
}

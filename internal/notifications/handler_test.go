package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofacility/facility-erp/internal/auth"
)

type stubAuth struct{ level int }

func (s stubAuth) Authenticate(context.Context, string) (auth.Principal, error) {
	return auth.Principal{UserID: "u-1", Name: "직원", PermissionLevel: s.level}, nil
}

func newTestRouter(level int, svc *Service) http.Handler {
	h := NewHandler(nil, svc, auth.Middleware{Service: stubAuth{level: level}})
	r := chi.NewRouter()
	r.Route("/api/notifications", h.MountRoutes)
	r.Route("/api/admin/notifications", h.MountAdmin)
	return r
}

func send(router http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer t")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerFeedSetsCachingHeaders(t *testing.T) {
	store := &stubStore{general: []Notification{{ID: "g-1", Title: "공지", CreatedAt: base}}}
	router := newTestRouter(auth.LevelGeneral, newService(store))

	rr := send(router, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "private, max-age=30", rr.Header().Get("Cache-Control"))
	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)

	var body struct {
		Success bool `json:"success"`
		Data    Feed `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Data.UnreadCount)

	rr = send(router, http.MethodGet, "/api/notifications", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Equal(t, 1, store.calls)
}

func TestHandlerStaleETagReloads(t *testing.T) {
	store := &stubStore{}
	router := newTestRouter(auth.LevelGeneral, newService(store))

	rr := send(router, http.MethodGet, "/api/notifications", "", "If-None-Match", `"stale"`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, store.calls)
}

func TestHandlerMarkRead(t *testing.T) {
	store := &stubStore{}
	router := newTestRouter(auth.LevelGeneral, newService(store))

	rr := send(router, http.MethodPost, "/api/notifications", `{"action":"mark_read","ids":["n-1"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"n-1"}, store.readIDs)
}

func TestHandlerPoll(t *testing.T) {
	store := &stubStore{}
	router := newTestRouter(auth.LevelGeneral, newService(store))

	rr := send(router, http.MethodPost, "/api/notifications", `{"action":"poll","lastUpdated":"2025-03-10T08:00:00Z"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, base.Add(-time.Hour), store.since)
	assert.Contains(t, rr.Body.String(), `"hasChanges":false`)
}

func TestHandlerUnknownAction(t *testing.T) {
	rr := send(newTestRouter(auth.LevelGeneral, newService(&stubStore{})),
		http.MethodPost, "/api/notifications", `{"action":"archive"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerDelete(t *testing.T) {
	store := &stubStore{}
	router := newTestRouter(auth.LevelGeneral, newService(store))

	rr := send(router, http.MethodDelete, "/api/notifications?ids=a,b", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"a", "b"}, store.deleted)

	rr = send(router, http.MethodDelete, "/api/notifications", `{"ids":["c"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"c"}, store.deleted)

	rr = send(router, http.MethodDelete, "/api/notifications", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "삭제할 알림 ID가 필요합니다.")
}

func TestHandlerAdminCreate(t *testing.T) {
	store := &stubStore{employees: []string{"e-1", "e-2"}}
	body := `{"type":"system_notice","title":"점검","message":"점검 안내","target_permission_level":1}`

	rr := send(newTestRouter(auth.LevelGeneral, newService(store)), http.MethodPost, "/api/admin/notifications", body)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = send(newTestRouter(auth.LevelAdmin, newService(store)), http.MethodPost, "/api/admin/notifications", body)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":2`)
}

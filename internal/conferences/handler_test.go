package conferences

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conference-central/backend/internal/auth"
	"github.com/conference-central/backend/internal/middleware"
	"github.com/conference-central/backend/internal/models"
	"github.com/conference-central/backend/internal/registration"
	"github.com/conference-central/backend/internal/store"
	"github.com/conference-central/backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type brokenNotifier struct{ calls int }

func (n *brokenNotifier) ConferenceCreated(context.Context, string, *models.Conference) error {
	n.calls++
	return errors.New("redis down")
}

// brokenStore fails every transaction with an unclassified error.
type brokenStore struct{ store.Store }

func (brokenStore) RunInTx(context.Context, func(store.Querier) error) error {
	return errors.New("disk I/O error")
}

func newEngine(h *Handler, userID string) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.ContextIdentity, auth.Identity{UserID: userID, Email: userID + "@example.com"})
		}
		c.Next()
	})
	r.POST("/conference", h.Create)
	r.POST("/conference/:key/registration", h.Register)
	r.DELETE("/conference/:key/registration", h.Unregister)
	return r
}

func serve(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateRequest_Conference(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr string
	}{
		{name: "blank name", req: CreateRequest{Name: "  "}, wantErr: "name is required"},
		{name: "bad start", req: CreateRequest{Name: "x", StartDate: "07/08/2026"}, wantErr: "invalid start_date"},
		{name: "bad end", req: CreateRequest{Name: "x", EndDate: "tomorrow"}, wantErr: "invalid end_date"},
		{name: "end before start", req: CreateRequest{Name: "x", StartDate: "2026-07-08", EndDate: "2026-07-01"}, wantErr: "end_date is before start_date"},
		{name: "undated", req: CreateRequest{Name: "x", MaxAttendees: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.req.conference("org")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, c.Month)
			assert.Equal(t, 4, c.SeatsAvailable)
			assert.Equal(t, "org", c.OrganizerUserID)
		})
	}
}

func TestCreate_NotifierFailureDoesNotFailRequest(t *testing.T) {
	st := testutil.NewStore(t)
	n := &brokenNotifier{}
	h := NewHandler(st, registration.NewService(st, nil), n, nil)

	w := serve(newEngine(h, "org"), http.MethodPost, "/conference", map[string]any{"name": "DevCon"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, n.calls)

	list, err := st.ListConferencesByOrganizer(context.Background(), "org")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreate_StoreFailure(t *testing.T) {
	st := testutil.NewStore(t)
	h := NewHandler(brokenStore{st}, nil, nil, nil)

	w := serve(newEngine(h, "org"), http.MethodPost, "/conference", map[string]any{"name": "DevCon"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRegister_UnexpectedFailureIsForbidden(t *testing.T) {
	st := testutil.NewStore(t)
	conf := testutil.NewBuilder(t, st).Conference("org", "DevCon")
	broken := brokenStore{st}
	h := NewHandler(broken, registration.NewService(broken, nil), nil, nil)
	r := newEngine(h, "alice")

	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		w := serve(r, method, "/conference/"+conf.Key.String()+"/registration", nil)
		require.Equal(t, http.StatusForbidden, w.Code, method)

		var body struct {
			Success bool                `json:"success"`
			Data    registration.Result `json:"data"`
			Error   string              `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.False(t, body.Data.Success)
		assert.Equal(t, "registration failed", body.Error)
	}
}

func TestRegister_Anonymous(t *testing.T) {
	st := testutil.NewStore(t)
	conf := testutil.NewBuilder(t, st).Conference("org", "DevCon")
	h := NewHandler(st, registration.NewService(st, nil), nil, nil)

	w := serve(newEngine(h, ""), http.MethodPost, "/conference/"+conf.Key.String()+"/registration", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

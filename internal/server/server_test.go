package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"secmaster/internal/config"
	"secmaster/internal/models"
	"secmaster/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type testServer struct {
	t     *testing.T
	db    *gorm.DB
	app   *fiber.App
	admin uint
	maker uint
	chk   uint
	other uint
}

func newTestServer(t *testing.T, flags string) *testServer {
	t.Helper()
	db := testutil.NewSQLiteDB(t)

	mk := func(first, email, role string) uint {
		u := &models.User{UserFields: models.UserFields{
			FirstName: models.Ptr(first),
			LastName:  models.Ptr("Tester"),
			Email:     models.Ptr(email),
			Role:      models.Ptr(role),
		}}
		require.NoError(t, db.Create(u).Error)
		return u.ID
	}
	ts := &testServer{
		t:     t,
		db:    db,
		admin: mk("Root", "root@example.com", models.RoleSuperAdmin),
		maker: mk("Mo", "mo@example.com", models.RoleInputter),
		chk:   mk("Cy", "cy@example.com", models.RoleAuthoriser),
		other: mk("Oz", "oz@example.com", models.RoleInputter),
	}

	s, err := NewServerWithDeps(&config.Config{JWTSecret: testSecret, FeatureFlags: flags}, db, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.dispatcher.Wait(ctx)
	})
	ts.app = s.newApp()
	return ts
}

func token(t *testing.T, userID uint) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// do sends a JSON request as userID (0 for anonymous) and decodes the
// response into out when out is non-nil.
func (ts *testServer) do(method, path string, userID uint, body any, out any) int {
	ts.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+token(ts.t, userID))
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(ts.t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func bondBody(authoriserID uint, isin string) fiber.Map {
	return fiber.Map{
		"authoriser_id": authoriserID,
		"data": fiber.Map{
			"security_name": "FGN " + isin,
			"isin":          isin,
			"issue_date":    "2021-03-01",
			"maturity_date": "2031-03-01",
			"coupon":        11.5,
			"coupon_type":   models.CouponTypeFixed,
		},
	}
}

type submissionBody struct {
	Applied    bool `json:"applied"`
	Submission struct {
		Request struct {
			ID             uint   `json:"id"`
			ApprovalStatus string `json:"approval_status"`
			RequestType    string `json:"request_type"`
		} `json:"request"`
		Requester  *map[string]any `json:"requester"`
		Authoriser *map[string]any `json:"authoriser"`
	} `json:"submission"`
	Entity *struct {
		ID   uint   `json:"id"`
		ISIN string `json:"isin"`
	} `json:"entity"`
}

func TestHealthLive(t *testing.T) {
	ts := newTestServer(t, "")
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health/live", 0, nil, nil))
}

func TestHealthReady_SQLiteWithoutRedis(t *testing.T) {
	ts := newTestServer(t, "")
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health/ready", 0, nil, &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "disabled", body.Checks["redis"])
}

func TestAPI_RequiresToken(t *testing.T) {
	ts := newTestServer(t, "")
	var body models.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/securities", 0, nil, &body))
	assert.Equal(t, models.CodeUnauthorized, body.Code)
}

func TestSecurities_ProposeReviewFlow(t *testing.T) {
	ts := newTestServer(t, "")

	var proposed submissionBody
	status := ts.do(http.MethodPost, "/api/securities", ts.maker, bondBody(ts.chk, "NGFGN0000201"), &proposed)
	require.Equal(t, http.StatusAccepted, status)
	assert.False(t, proposed.Applied)
	assert.Equal(t, "pending", proposed.Submission.Request.ApprovalStatus)
	require.NotNil(t, proposed.Submission.Requester)
	assert.Equal(t, "Mo Tester", (*proposed.Submission.Requester)["full_name"])
	pendingID := proposed.Submission.Request.ID

	var list struct {
		Items []json.RawMessage `json:"items"`
		Total int64             `json:"total"`
	}
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/securities/pending", ts.chk, nil, &list))
	assert.Equal(t, int64(1), list.Total)

	approvePath := fmt.Sprintf("/api/securities/pending/%d/approve", pendingID)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, approvePath, ts.maker, nil, nil), "requester cannot approve")
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, approvePath, ts.other, nil, nil), "unselected user cannot approve")

	var approved struct {
		Outcome string `json:"outcome"`
		Entity  struct {
			ID   uint   `json:"id"`
			ISIN string `json:"isin"`
		} `json:"entity"`
	}
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, approvePath, ts.chk, nil, &approved))
	assert.Equal(t, "applied", approved.Outcome)
	assert.Equal(t, "NGFGN0000201", approved.Entity.ISIN)

	var again models.ErrorResponse
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, approvePath, ts.chk, nil, &again))
	assert.Equal(t, models.CodeNotPending, again.Code)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, fmt.Sprintf("/api/securities/%d", approved.Entity.ID), ts.other, nil, nil))
}

func TestSecurities_BypassCreatesDirectly(t *testing.T) {
	ts := newTestServer(t, "")

	var created submissionBody
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/securities", ts.admin, bondBody(0, "NGFGN0000202"), &created))
	assert.True(t, created.Applied)
	require.NotNil(t, created.Entity)
	assert.Equal(t, "NGFGN0000202", created.Entity.ISIN)

	var dup models.ErrorResponse
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/api/securities", ts.maker, bondBody(ts.chk, "NGFGN0000202"), &dup))
	assert.Equal(t, models.CodeDuplicateEntry, dup.Code)

	path := fmt.Sprintf("/api/securities/%d?authoriser_id=%d", created.Entity.ID, ts.chk)
	var deletion submissionBody
	require.Equal(t, http.StatusAccepted, ts.do(http.MethodDelete, path, ts.maker, nil, &deletion))
	assert.Equal(t, "delete", deletion.Submission.Request.RequestType)
}

func TestSecurities_RejectRequiresReason(t *testing.T) {
	ts := newTestServer(t, "")

	var proposed submissionBody
	require.Equal(t, http.StatusAccepted, ts.do(http.MethodPost, "/api/securities", ts.maker, bondBody(ts.chk, "NGFGN0000203"), &proposed))
	rejectPath := fmt.Sprintf("/api/securities/pending/%d/reject", proposed.Submission.Request.ID)

	var bad models.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, rejectPath, ts.chk, fiber.Map{"reason": "  "}, &bad))
	assert.Equal(t, models.CodeValidation, bad.Code)

	var rejected struct {
		ApprovalStatus  string `json:"approval_status"`
		RejectionReason string `json:"rejection_reason"`
	}
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, rejectPath, ts.chk, fiber.Map{"reason": "wrong coupon"}, &rejected))
	assert.Equal(t, "rejected", rejected.ApprovalStatus)
	assert.Equal(t, "wrong coupon", rejected.RejectionReason)
}

func TestKindRoutes_ErrorMapping(t *testing.T) {
	ts := newTestServer(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown pending id", http.MethodGet, "/api/market-categories/pending/999", nil, http.StatusNotFound},
		{"unknown record", http.MethodGet, "/api/product-types/999", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/security-types/abc", nil, http.StatusBadRequest},
		{"no authoriser", http.MethodPost, "/api/market-categories", fiber.Map{"data": fiber.Map{"name": "Equities"}}, http.StatusBadRequest},
		{"self authoriser", http.MethodPost, "/api/market-categories", fiber.Map{"authoriser_id": ts.maker, "data": fiber.Map{"name": "Equities"}}, http.StatusBadRequest},
		{"update missing record", http.MethodPut, "/api/product-types/999", fiber.Map{"authoriser_id": ts.chk, "data": fiber.Map{"name": "Bills"}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, ts.do(tt.method, tt.path, ts.maker, tt.body, nil))
		})
	}
}

func TestUsers_PasswordNeverReturned(t *testing.T) {
	ts := newTestServer(t, "")

	body := fiber.Map{
		"authoriser_id": ts.chk,
		"data": fiber.Map{
			"first_name": "Nia",
			"email":      "nia@example.com",
			"role":       models.RoleInputter,
			"password":   "Str0ngPassw0rd!",
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewReader(mustJSON(t, body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, ts.maker))
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotContains(t, string(raw), "Str0ngPassw0rd!")
	assert.NotContains(t, string(raw), "password")
}

func TestPendingActions_FeatureFlag(t *testing.T) {
	off := newTestServer(t, "")
	assert.Equal(t, http.StatusNotFound, off.do(http.MethodGet, "/api/pending-actions", off.maker, nil, nil))

	ts := newTestServer(t, "pending_actions=on")
	var action struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}
	status := ts.do(http.MethodPost, "/api/pending-actions", ts.maker, fiber.Map{
		"model_type":  models.ModelTypeAuctionResult,
		"action_type": models.RequestCreate,
		"data":        fiber.Map{"auction_number": "A-2025-02", "auction_date": "2025-01-08", "amount_offered": 100, "amount_subscribed": 120},
	}, &action)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "pending", action.Status)

	approvePath := fmt.Sprintf("/api/pending-actions/%d/approve", action.ID)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, approvePath, ts.other, nil, nil))

	var approved struct {
		Outcome string `json:"outcome"`
	}
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, approvePath, ts.chk, nil, &approved))
	assert.Equal(t, "applied", approved.Outcome)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/pending-actions?status=bogus", ts.chk, nil, nil))
}

func TestFeatureFlags_Endpoint(t *testing.T) {
	ts := newTestServer(t, "pending_actions=on")
	var body struct {
		Evaluated map[string]bool `json:"evaluated"`
	}
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/feature-flags", ts.maker, nil, &body))
	assert.True(t, body.Evaluated["pending_actions"])
	assert.True(t, body.Evaluated["live_notifications"])
}

func TestWebsocket_UnavailableWithoutRedis(t *testing.T) {
	ts := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/ws?token="+token(t, ts.maker), nil)
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = ts.app.Test(httptest.NewRequest(http.MethodGet, "/api/ws", nil), -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestParseKinds(t *testing.T) {
	assert.Nil(t, parseKinds(""))
	assert.Equal(t, []string{"security", "user"}, parseKinds("security, ,user"))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

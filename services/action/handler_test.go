package action

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"engagement-ledger/pkg/middleware"
	"engagement-ledger/services/account"
	"engagement-ledger/services/campaign"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(env *testEnv, limiter *middleware.RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(middleware.Error())
	account.RegisterRoutes(r, account.NewHandler(account.HandlerParams{Service: env.accounts, TxLog: env.logs}))
	campaign.RegisterRoutes(r, campaign.NewHandler(env.campaigns))
	RegisterRoutes(r, NewHandler(HandlerParams{Service: env.svc, Limiter: limiter}))
	return r
}

func call(t *testing.T, r *gin.Engine, method, path string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

type apiError struct {
	Error struct {
		Reason string `json:"reason"`
	} `json:"error"`
}

func TestHTTPCampaignLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	r := newTestRouter(env, middleware.NewRateLimiter(middleware.RateLimit{RequestsPerMinute: 600, Burst: 10}))

	require.Equal(t, http.StatusCreated, call(t, r, http.MethodPost, "/v1/accounts", map[string]any{"account_id": "owner"}, nil))
	require.Equal(t, http.StatusCreated, call(t, r, http.MethodPost, "/v1/accounts/owner/grants", map[string]any{"amount": 100, "reference_id": "topup-1"}, nil))

	var created campaign.Campaign
	code := call(t, r, http.MethodPost, "/v1/campaigns", map[string]any{
		"owner_id":           "owner",
		"kind":               "VIDEO",
		"action_type":        "VIEW",
		"credits_per_action": 4,
		"target_count":       5,
		"target_ref":         "video-9",
	}, &created)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, int64(20), created.TotalCredits)

	submit := map[string]any{
		"performer_id": "viewer",
		"campaign_id":  created.ID,
		"action_type":  "VIEW",
		"verification": map[string]any{
			"verified": true,
			"details":  map[string]any{"views": map[string]any{"before": 100, "after": 101}},
		},
	}
	var res SubmitActionResponse
	require.Equal(t, http.StatusCreated, call(t, r, http.MethodPost, "/v1/actions", submit, &res))
	require.Equal(t, int64(4), res.CreditsEarned)
	require.Equal(t, int64(4), res.NewBalance)
	require.Equal(t, "ACTIVE", res.CampaignStatus)

	var dup apiError
	require.Equal(t, http.StatusConflict, call(t, r, http.MethodPost, "/v1/actions", submit, &dup))
	require.Equal(t, "ALREADY_PERFORMED", dup.Error.Reason)

	var bal account.BalanceResponse
	require.Equal(t, http.StatusOK, call(t, r, http.MethodGet, "/v1/accounts/owner/balance", nil, &bal))
	require.Equal(t, int64(80), bal.Balance)
	require.Equal(t, int64(20), bal.TotalSpent)

	var denied apiError
	require.Equal(t, http.StatusConflict, call(t, r, http.MethodPost, "/v1/campaigns/"+created.ID+"/cancel", map[string]any{"owner_id": "owner"}, &denied))
	require.Equal(t, "CAMPAIGN_HAS_ACTIONS", denied.Error.Reason)

	var paused campaign.Campaign
	require.Equal(t, http.StatusOK, call(t, r, http.MethodPost, "/v1/campaigns/"+created.ID+"/status", map[string]any{"owner_id": "owner", "status": "PAUSED"}, &paused))
	require.Equal(t, campaign.StatusPaused, paused.Status)

	var forbidden apiError
	require.Equal(t, http.StatusForbidden, call(t, r, http.MethodPost, "/v1/campaigns/"+created.ID+"/status", map[string]any{"owner_id": "viewer", "status": "ACTIVE"}, &forbidden))
	require.Equal(t, "UNAUTHORIZED", forbidden.Error.Reason)

	var list ActionsResponse
	require.Equal(t, http.StatusOK, call(t, r, http.MethodGet, "/v1/campaigns/"+created.ID+"/actions", nil, &list))
	require.Len(t, list.Actions, 1)
	require.False(t, list.PageInfo.HasMore)

	var history account.TransactionsResponse
	require.Equal(t, http.StatusOK, call(t, r, http.MethodGet, "/v1/accounts/viewer/transactions?limit=5", nil, &history))
	require.Len(t, history.Transactions, 1)
	require.Equal(t, res.ActionID, history.Transactions[0].ReferenceID)
}

func TestHTTPCancelRefunds(t *testing.T) {
	env := newTestEnv(t, nil)
	r := newTestRouter(env, nil)
	env.fund(t, "owner", 50)

	var created campaign.Campaign
	require.Equal(t, http.StatusCreated, call(t, r, http.MethodPost, "/v1/campaigns", map[string]any{
		"owner_id": "owner", "action_type": "FOLLOW", "credits_per_action": 10, "target_count": 5, "target_ref": "@owner",
	}, &created))
	require.Equal(t, campaign.KindFollow, created.Kind)

	var cancelled campaign.CancelResponse
	require.Equal(t, http.StatusOK, call(t, r, http.MethodPost, "/v1/campaigns/"+created.ID+"/cancel", map[string]any{"owner_id": "owner"}, &cancelled))
	require.Equal(t, int64(50), cancelled.Refunded)

	var bal account.BalanceResponse
	require.Equal(t, http.StatusOK, call(t, r, http.MethodGet, "/v1/accounts/owner/balance", nil, &bal))
	require.Equal(t, int64(50), bal.Balance)
}

func TestHTTPErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	r := newTestRouter(env, nil)
	env.fund(t, "owner", 10)

	var e apiError
	require.Equal(t, http.StatusUnprocessableEntity, call(t, r, http.MethodPost, "/v1/campaigns", map[string]any{
		"owner_id": "owner", "kind": "VIDEO", "action_type": "LIKE", "credits_per_action": 5, "target_count": 5,
	}, &e))
	require.Equal(t, "INSUFFICIENT_BALANCE", e.Error.Reason)

	e = apiError{}
	require.Equal(t, http.StatusBadRequest, call(t, r, http.MethodPost, "/v1/campaigns", map[string]any{
		"owner_id": "owner", "kind": "VIDEO", "action_type": "LIKE", "credits_per_action": 0, "target_count": 5,
	}, &e))
	require.Equal(t, "INVALID_ARGUMENT", e.Error.Reason)

	e = apiError{}
	require.Equal(t, http.StatusNotFound, call(t, r, http.MethodGet, "/v1/accounts/ghost/balance", nil, &e))
	require.Equal(t, "NOT_FOUND", e.Error.Reason)

	e = apiError{}
	require.Equal(t, http.StatusBadRequest, call(t, r, http.MethodPost, "/v1/actions", map[string]any{
		"performer_id": "p", "campaign_id": "c", "action_type": "SHARE",
	}, &e))
	require.Equal(t, "INVALID_ARGUMENT", e.Error.Reason)
}

func TestHTTPSubmitRateLimited(t *testing.T) {
	env := newTestEnv(t, nil)
	r := newTestRouter(env, middleware.NewRateLimiter(middleware.RateLimit{RequestsPerMinute: 1, Burst: 1}))

	body := map[string]any{"performer_id": "p", "campaign_id": "missing", "action_type": "VIEW"}
	require.Equal(t, http.StatusNotFound, call(t, r, http.MethodPost, "/v1/actions", body, nil))
	require.Equal(t, http.StatusTooManyRequests, call(t, r, http.MethodPost, "/v1/actions", body, nil))
}

func TestHTTPEmptyIDsDoNotMatchOtherRows(t *testing.T) {
	env := newTestEnv(t, nil)
	r := newTestRouter(env, nil)

	require.Equal(t, http.StatusCreated, call(t, r, http.MethodPost, "/v1/accounts", map[string]any{"account_id": "owner"}, nil))
	require.Equal(t, http.StatusCreated, call(t, r, http.MethodPost, "/v1/accounts/owner/grants", map[string]any{"amount": 100}, nil))
	require.Equal(t, http.StatusCreated, call(t, r, http.MethodPost, "/v1/campaigns", map[string]any{
		"owner_id":           "owner",
		"action_type":        "VIEW",
		"credits_per_action": 2,
		"target_count":       5,
		"target_ref":         "video-1",
	}, nil))

	cases := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/v1/accounts//balance", nil},
		{http.MethodGet, "/v1/accounts//transactions", nil},
		{http.MethodGet, "/v1/campaigns/", nil},
		{http.MethodGet, "/v1/campaigns//actions", nil},
		{http.MethodPost, "/v1/campaigns//cancel", map[string]any{"owner_id": "owner"}},
		{http.MethodPost, "/v1/campaigns//status", map[string]any{"owner_id": "owner", "status": "PAUSED"}},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			var buf bytes.Buffer
			if tc.body != nil {
				require.NoError(t, json.NewEncoder(&buf).Encode(tc.body))
			}
			r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, &buf))

			require.NotEqual(t, http.StatusOK, w.Code)
			require.Less(t, w.Code, http.StatusInternalServerError)
		})
	}

	var bal account.BalanceResponse
	require.Equal(t, http.StatusOK, call(t, r, http.MethodGet, "/v1/accounts/owner/balance", nil, &bal))
	require.Equal(t, int64(90), bal.Balance)
}

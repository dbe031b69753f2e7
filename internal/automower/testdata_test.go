package automower

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/teclab-at/logic-nodes/internal/node"
)

const listGardenMowing = `{
  "data": [
    {
      "type": "mower",
      "id": "mower-1",
      "attributes": {
        "system": {"name": "Garden", "model": "AUTOMOWER 430X", "serialNumber": 123456},
        "battery": {"batteryPercent": 77},
        "mower": {"mode": "MAIN_AREA", "activity": "MOWING", "state": "IN_OPERATION", "errorCode": 0},
        "metadata": {"connected": true, "statusTimestamp": 1700000000000}
      }
    },
    {
      "type": "mower",
      "id": "mower-2",
      "attributes": {
        "system": {"name": "Front", "model": "AUTOMOWER 315"},
        "battery": {"batteryPercent": 100},
        "mower": {"mode": "HOME", "activity": "PARKED_IN_CS", "state": "RESTRICTED"},
        "metadata": {"connected": false}
      }
    }
  ]
}`

const listErrorEnvelope = `{"errors":[{"id":"e1","status":"403","code":"invalid.api.key","title":"Invalid API key","detail":"The supplied key is not valid"}]}`

// fakeAPI serves the token endpoint and the mower list.
type fakeAPI struct {
	srv *httptest.Server

	tokenCalls  atomic.Int32
	mowersCalls atomic.Int32

	mu          sync.Mutex
	mowersBody  string
	mowersCode  int
	tokenCode   int
	failRefresh bool
	grants      []string
	lastHeaders http.Header

	// block, if set, holds mower requests until closed.
	block   chan struct{}
	entered chan struct{}
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{mowersBody: listGardenMowing, mowersCode: http.StatusOK, tokenCode: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", api.handleToken)
	mux.HandleFunc("/v1/mowers", api.handleMowers)
	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) tokenURL() string  { return a.srv.URL + "/oauth2/token" }
func (a *fakeAPI) mowersURL() string { return a.srv.URL + "/v1/mowers" }

func (a *fakeAPI) set(code int, body string) {
	a.mu.Lock()
	a.mowersCode = code
	a.mowersBody = body
	a.mu.Unlock()
}

func (a *fakeAPI) grantLog() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.grants...)
}

func (a *fakeAPI) headers() http.Header {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastHeaders.Clone()
}

func (a *fakeAPI) handleToken(w http.ResponseWriter, r *http.Request) {
	n := a.tokenCalls.Add(1)
	grant := r.PostFormValue("grant_type")

	a.mu.Lock()
	a.grants = append(a.grants, grant)
	code := a.tokenCode
	if a.failRefresh && grant == "refresh_token" {
		code = http.StatusUnauthorized
	}
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  fmt.Sprintf("token-%d", n),
		"refresh_token": "refresh",
		"token_type":    "Bearer",
		"provider":      "husqvarna",
		"user_id":       "u1",
		"scope":         "iam:read amc:api",
		"expires_in":    86399,
	})
}

func (a *fakeAPI) handleMowers(w http.ResponseWriter, r *http.Request) {
	a.mowersCalls.Add(1)

	a.mu.Lock()
	a.lastHeaders = r.Header.Clone()
	code, body := a.mowersCode, a.mowersBody
	block, entered := a.block, a.entered
	a.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}

	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(code)
	fmt.Fprint(w, body)
}

// countingSink records emitted outputs.
type countingSink struct {
	mu   sync.Mutex
	outs []string
}

func (s *countingSink) Emit(_ string, out node.Output) {
	s.mu.Lock()
	s.outs = append(s.outs, fmt.Sprintf("%s=%v", out.Name, out.Value))
	s.mu.Unlock()
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outs)
}

package query

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"

	"candlecore/internal/kline"
	"candlecore/internal/logger"
	"candlecore/internal/session"
)

type fakeRegistry struct {
	loginID        int32
	loginConfig    kline.UserConfig
	loginErr       error
	logoutErr      error
	updateErr      error
	detectEvents   []kline.DetectEvent
	detectIsFull   bool
	detectErr      error
	venues         []string
	venuesErr      error
	instruments    []kline.InstrumentId
	instrumentsErr error
	onlineNames    []string

	lastVenueId string
	lastConfig  kline.UserConfig
}

func (f *fakeRegistry) Login(name, password string) (int32, kline.UserConfig, error) {
	return f.loginID, f.loginConfig, f.loginErr
}
func (f *fakeRegistry) Logout(sessionId int32) error { return f.logoutErr }
func (f *fakeRegistry) UpdateConfig(sessionId int32, cfg kline.UserConfig) error {
	f.lastConfig = cfg
	return f.updateErr
}
func (f *fakeRegistry) PollDetect(sessionId int32) ([]kline.DetectEvent, bool, error) {
	return f.detectEvents, f.detectIsFull, f.detectErr
}
func (f *fakeRegistry) ListVenues(sessionId int32) ([]string, error) { return f.venues, f.venuesErr }
func (f *fakeRegistry) ListKLineIds(sessionId int32, venueId string) ([]kline.InstrumentId, error) {
	f.lastVenueId = venueId
	return f.instruments, f.instrumentsErr
}
func (f *fakeRegistry) OnlineUserNames() []string { return f.onlineNames }

func newTestServer(reg Registry) *Server {
	return NewServer(reg, logger.New("error"), "candlewatch", "test")
}

func decodeEnvelope(t *testing.T, body []byte) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestHandleLogin_Success(t *testing.T) {
	reg := &fakeRegistry{loginID: 42, loginConfig: kline.UserConfig{Filters: []kline.Filter{}}}
	s := newTestServer(reg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/login?user=alice&password=secret", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	if env.Status != StatusOK {
		t.Fatalf("status = %v, want OK", env.Status)
	}
	var body struct {
		Data struct {
			SessionId int32 `json:"sessionId"`
			Config    struct {
				Filters []kline.Filter `json:"Filters"`
			} `json:"config"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data.SessionId != 42 {
		t.Fatalf("sessionId = %d, want 42", body.Data.SessionId)
	}
}

func TestHandleLogin_MissingCredentials(t *testing.T) {
	reg := &fakeRegistry{}
	s := newTestServer(reg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/login?user=alice", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	reg := &fakeRegistry{loginErr: session.ErrInvalidCredentials}
	s := newTestServer(reg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/login?user=alice&password=wrong", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	if env.Status != StatusUnauthorized {
		t.Fatalf("status = %v, want UNAUTHORIZED", env.Status)
	}
}

func TestHandleLogout_MissingSessionID(t *testing.T) {
	s := newTestServer(&fakeRegistry{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/logout", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleLogout_UnknownSession(t *testing.T) {
	s := newTestServer(&fakeRegistry{logoutErr: session.ErrUnknownSession})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/logout?sessionId=7", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleConfig_ParsesFilters(t *testing.T) {
	reg := &fakeRegistry{}
	s := newTestServer(reg)

	filters := `{"filters":[{"type":"Delta","min":0.02,"max":1.0,"interval":60000}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/config?sessionId=1&config="+escapeQuery(filters), nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if len(reg.lastConfig.Filters) != 1 {
		t.Fatalf("expected 1 filter to be applied, got %d", len(reg.lastConfig.Filters))
	}
	if reg.lastConfig.Filters[0].Interval != kline.Interval1m {
		t.Fatalf("interval = %v, want 1m", reg.lastConfig.Filters[0].Interval)
	}
}

func TestHandleConfig_RejectsInvalidFilter(t *testing.T) {
	reg := &fakeRegistry{}
	s := newTestServer(reg)

	filters := `{"filters":[{"type":"Bogus","min":0.02,"max":1.0,"interval":60000}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/config?sessionId=1&config="+escapeQuery(filters), nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleConfig_RejectsUnknownInterval(t *testing.T) {
	reg := &fakeRegistry{}
	s := newTestServer(reg)

	filters := `{"filters":[{"type":"Delta","min":0.02,"max":1.0,"interval":123456}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/config?sessionId=1&config="+escapeQuery(filters), nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleDetect_ReturnsEventsAndIsFull(t *testing.T) {
	reg := &fakeRegistry{
		detectEvents: []kline.DetectEvent{{}},
		detectIsFull: true,
	}
	s := newTestServer(reg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/detect?sessionId=1", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data struct {
			IsFull bool `json:"isFull"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Data.IsFull {
		t.Fatalf("isFull = false, want true")
	}
}

func TestHandleDetect_UnknownSession(t *testing.T) {
	reg := &fakeRegistry{detectErr: session.ErrUnknownSession}
	s := newTestServer(reg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/detect?sessionId=1", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleStockExchanges(t *testing.T) {
	reg := &fakeRegistry{venues: []string{"BINANCE", "MOEX"}}
	s := newTestServer(reg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/stockexchanges?sessionId=1", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleStockExchanges_RequiresSessionID(t *testing.T) {
	s := newTestServer(&fakeRegistry{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/stockexchanges", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleKLinesIdList_FiltersByVenue(t *testing.T) {
	reg := &fakeRegistry{instruments: []kline.InstrumentId{
		{Venue: "BINANCE", Symbol: "BTCUSDT", Interval: kline.Interval1m},
	}}
	s := newTestServer(reg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/klinesidlist?sessionId=1&venueId=BINANCE", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if reg.lastVenueId != "BINANCE" {
		t.Fatalf("lastVenueId = %q, want BINANCE", reg.lastVenueId)
	}
}

func TestHandleKLinesIdList_RequiresVenueId(t *testing.T) {
	s := newTestServer(&fakeRegistry{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/klinesidlist?sessionId=1", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleServerStatus(t *testing.T) {
	reg := &fakeRegistry{onlineNames: []string{"alice", "bob", "carol"}}
	s := newTestServer(reg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/serverstatus", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data struct {
			Now         int64    `json:"now"`
			UptimeSec   int64    `json:"uptimeSec"`
			UsersOnline []string `json:"usersOnline"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data.Now == 0 {
		t.Fatalf("now = 0, want nonzero")
	}
	if len(body.Data.UsersOnline) != 3 {
		t.Fatalf("usersOnline = %v, want 3 entries", body.Data.UsersOnline)
	}
}

func TestNoRoute_ReturnsNotFound(t *testing.T) {
	s := newTestServer(&fakeRegistry{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/nonexistent", nil)
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func escapeQuery(s string) string {
	return url.QueryEscape(s)
}

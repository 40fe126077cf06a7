package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gymflow/internal/cache"
	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/service"
)

type fakeRecommender struct {
	req  service.RecommendationRequest
	resp *service.RecommendationResponse
	err  error
}

func (f *fakeRecommender) Recommend(_ context.Context, req service.RecommendationRequest) (*service.RecommendationResponse, error) {
	f.req = req
	return f.resp, f.err
}

type fakeSuggester struct {
	req  service.ScheduleRequest
	resp *service.ScheduleResponse
	err  error
}

func (f *fakeSuggester) Suggest(_ context.Context, req service.ScheduleRequest) (*service.ScheduleResponse, error) {
	f.req = req
	return f.resp, f.err
}

type fakeSearcher struct {
	req *service.SearchRequest
	err error
}

func (f *fakeSearcher) Search(_ context.Context, req *service.SearchRequest) (*service.SearchResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.SearchResponse{}, nil
}

type fakeProfiles struct {
	update domain.MemberProfileUpdate
	err    error
}

func (f *fakeProfiles) UpdateProfile(_ context.Context, memberID string, update domain.MemberProfileUpdate) (*domain.Member, error) {
	f.update = update
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Member{ID: memberID}, nil
}

type fakeClassUpdater struct {
	err error
}

func (f *fakeClassUpdater) UpdateClass(_ context.Context, classID string, _ domain.ClassUpdate) (*domain.Class, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Class{ID: classID}, nil
}

type fakeWarmer struct {
	runID  string
	err    error
	status cache.WarmStatus
}

func (f *fakeWarmer) Trigger(context.Context) (string, error) { return f.runID, f.err }
func (f *fakeWarmer) Status() cache.WarmStatus                 { return f.status }

type fakeInvalidator struct {
	n   int
	err error
}

func (f *fakeInvalidator) InvalidateMember(context.Context, string) (int, error) { return f.n, f.err }

func serve(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestGetRecommendations(t *testing.T) {
	testCases := []struct {
		name       string
		target     string
		err        error
		wantStatus int
		check      func(t *testing.T, req service.RecommendationRequest)
	}{
		{
			name:       "defaults",
			target:     "/recommendations/m1",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, req service.RecommendationRequest) {
				if req.MemberID != "m1" || req.UseAI || !req.UseVector || req.SkipCache || req.Limit != 0 {
					t.Errorf("request = %+v", req)
				}
			},
		},
		{
			name:       "all flags",
			target:     "/recommendations/m1?useAI=true&useVector=false&skipCache=1&limit=5",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, req service.RecommendationRequest) {
				if !req.UseAI || req.UseVector || !req.SkipCache || req.Limit != 5 {
					t.Errorf("request = %+v", req)
				}
			},
		},
		{name: "bad bool", target: "/recommendations/m1?useAI=maybe", wantStatus: http.StatusBadRequest},
		{name: "negative limit", target: "/recommendations/m1?limit=-1", wantStatus: http.StatusBadRequest},
		{name: "invalid input", target: "/recommendations/m1?limit=500", err: fmt.Errorf("%w: limit too large", service.ErrInvalidInput), wantStatus: http.StatusBadRequest},
		{name: "unknown member", target: "/recommendations/m9", err: fmt.Errorf("%w: m9", service.ErrMemberNotFound), wantStatus: http.StatusNotFound},
		{name: "internal", target: "/recommendations/m1", err: errors.New("db password leaked"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &fakeRecommender{err: tc.err}
			if tc.err == nil {
				rec.resp = &service.RecommendationResponse{MemberID: "m1", Method: service.MethodRule}
			}
			r := newEngine()
			r.GET("/recommendations/:memberId", NewSuggestionHandler(rec, &fakeSuggester{}).GetRecommendations)

			w := serve(r, http.MethodGet, tc.target, "")
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
			if tc.wantStatus == http.StatusInternalServerError && strings.Contains(w.Body.String(), "password") {
				t.Error("internal error detail leaked to the client")
			}
			if tc.check != nil {
				tc.check(t, rec.req)
			}
		})
	}
}

func TestGetScheduleSuggestions(t *testing.T) {
	sug := &fakeSuggester{resp: &service.ScheduleResponse{MemberID: "m1"}}
	r := newEngine()
	r.GET("/suggestions/:memberId", NewSuggestionHandler(&fakeRecommender{}, sug).GetScheduleSuggestions)

	w := serve(r, http.MethodGet, "/suggestions/m1?category=yoga&trainerId=t1&classId=c1&dateRange=2024-03-10:2024-03-17&useAI=true&limit=3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	want := service.ScheduleRequest{
		MemberID:  "m1",
		ClassID:   "c1",
		Category:  "yoga",
		TrainerID: "t1",
		DateRange: "2024-03-10:2024-03-17",
		UseAI:     true,
		Limit:     3,
	}
	if sug.req != want {
		t.Errorf("request = %+v, want %+v", sug.req, want)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["member_id"] != "m1" {
		t.Errorf("member_id = %v", body["member_id"])
	}

	if w := serve(r, http.MethodGet, "/suggestions/m1?skipCache=nah", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad skipCache status = %d, want 400", w.Code)
	}
}

func TestSemanticSearch(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "ok", body: `{"query":"gentle stretching","top_k":5}`, wantStatus: http.StatusOK},
		{name: "missing query", body: `{"top_k":5}`, wantStatus: http.StatusBadRequest},
		{name: "malformed json", body: `{"query":`, wantStatus: http.StatusBadRequest},
		{name: "service rejects", body: `{"query":"x","top_k":1000}`, err: service.ErrInvalidInput, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			searcher := &fakeSearcher{err: tc.err}
			r := newEngine()
			r.POST("/search", NewSearchHandler(searcher).SemanticSearch)

			w := serve(r, http.MethodPost, "/search", tc.body)
			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
			if tc.wantStatus == http.StatusOK && (searcher.req == nil || searcher.req.TopK != 5) {
				t.Errorf("request = %+v", searcher.req)
			}
		})
	}
}

func TestProfileHandler(t *testing.T) {
	profiles := &fakeProfiles{}
	classes := &fakeClassUpdater{err: fmt.Errorf("%w: c9", service.ErrClassNotFound)}
	h := NewProfileHandler(profiles, classes)
	r := newEngine()
	r.PATCH("/members/:memberId/profile", h.UpdateMemberProfile)
	r.PATCH("/classes/:classId", h.UpdateClass)

	w := serve(r, http.MethodPatch, "/members/m1/profile", `{"fitness_goals":["endurance"],"ai_opt_in":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("profile status = %d, body %s", w.Code, w.Body.String())
	}
	if profiles.update.FitnessGoals == nil || (*profiles.update.FitnessGoals)[0] != "endurance" {
		t.Errorf("fitness goals not bound: %+v", profiles.update)
	}
	if profiles.update.AIOptIn == nil || !*profiles.update.AIOptIn || profiles.update.Tier != nil {
		t.Errorf("update = %+v", profiles.update)
	}

	if w := serve(r, http.MethodPatch, "/members/m1/profile", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed profile status = %d, want 400", w.Code)
	}
	if w := serve(r, http.MethodPatch, "/classes/c9", `{"capacity":10}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown class status = %d, want 404", w.Code)
	}
}

func TestAdminHandler(t *testing.T) {
	testCases := []struct {
		name       string
		warmer     *fakeWarmer
		method     string
		target     string
		wantStatus int
		wantBody   string
	}{
		{name: "trigger", warmer: &fakeWarmer{runID: "run-1"}, method: http.MethodPost, target: "/warm", wantStatus: http.StatusAccepted, wantBody: "run-1"},
		{name: "already running", warmer: &fakeWarmer{err: cache.ErrWarmInProgress, status: cache.WarmStatus{Running: true, RunID: "run-0"}}, method: http.MethodPost, target: "/warm", wantStatus: http.StatusConflict, wantBody: "run-0"},
		{name: "status", warmer: &fakeWarmer{status: cache.WarmStatus{Members: 7}}, method: http.MethodGet, target: "/warm", wantStatus: http.StatusOK, wantBody: `"members":7`},
		{name: "invalidate", warmer: &fakeWarmer{}, method: http.MethodDelete, target: "/members/m1", wantStatus: http.StatusOK, wantBody: `"invalidated":3`},
		{name: "blank member", warmer: &fakeWarmer{}, method: http.MethodDelete, target: "/members/%20", wantStatus: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAdminHandler(tc.warmer, &fakeInvalidator{n: 3})
			r := newEngine()
			r.POST("/warm", h.TriggerWarm)
			r.GET("/warm", h.WarmStatus)
			r.DELETE("/members/:memberId", h.InvalidateMember)

			w := serve(r, tc.method, tc.target, "")
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tc.wantBody) {
				t.Errorf("body %s does not contain %s", w.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	testCases := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		want       string
	}{
		{name: "healthy", checks: map[string]HealthCheck{"database": ok, "cache": ok}, wantStatus: http.StatusOK, want: "ok"},
		{name: "cache down", checks: map[string]HealthCheck{"database": ok, "cache": down}, wantStatus: http.StatusOK, want: "degraded"},
		{name: "database down", checks: map[string]HealthCheck{"database": down, "cache": down}, wantStatus: http.StatusServiceUnavailable, want: "unavailable"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newEngine()
			r.GET("/health", NewHealthHandler(tc.checks).Health)

			w := serve(r, http.MethodGet, "/health", "")
			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			var body struct {
				Status       string            `json:"status"`
				Dependencies map[string]string `json:"dependencies"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tc.want {
				t.Errorf("status field = %s, want %s", body.Status, tc.want)
			}
			if len(body.Dependencies) != len(tc.checks) {
				t.Errorf("dependencies = %v", body.Dependencies)
			}
		})
	}
}

package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	alertmodels "gigsafe/internal/alert/models"
	credmodels "gigsafe/internal/credential/models"
	scoremodels "gigsafe/internal/scoring/models"
	"gigsafe/internal/verification"
	"gigsafe/internal/verification/handler/mocks"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/verification-mocks.go -package=mocks Service
type VerificationHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestVerificationHandlerSuite(t *testing.T) {
	suite.Run(t, new(VerificationHandlerSuite))
}

func (s *VerificationHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *VerificationHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func (s *VerificationHandlerSuite) TestVerifyPayload() {
	payload := "GIGSAFE|DRV00009|abc|2025-01-01T00:00:00Z"

	s.Run("authentic", func() {
		s.service.EXPECT().VerifyPayload(gomock.Any(), payload).Return(verification.Result{
			Status:   credmodels.StatusAuthentic,
			Identity: &verification.Identity{WorkerID: "DRV00009", NationalID: "XXXXXXXX8744"},
			Safety:   &verification.Safety{Status: scoremodels.StatusUnscored, UnscoredReason: scoremodels.ReasonNoActivity},
			Location: &verification.Location{Lat: 26.9124, Lon: 75.7873, City: "Jaipur", Source: verification.LocationDefault},
		}, nil)

		w := s.do(http.MethodPost, "/verify", map[string]string{"payload": payload})
		s.Require().Equal(http.StatusOK, w.Code)

		var got verification.Result
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
		s.Equal(credmodels.StatusAuthentic, got.Status)
		s.Equal("XXXXXXXX8744", got.Identity.NationalID)
		s.Equal(verification.LocationDefault, got.Location.Source)
	})

	s.Run("not found answers 404 with a result body", func() {
		s.service.EXPECT().VerifyPayload(gomock.Any(), payload).
			Return(verification.Result{Status: credmodels.StatusNotFound}, nil)

		w := s.do(http.MethodPost, "/verify", map[string]string{"payload": payload})
		s.Equal(http.StatusNotFound, w.Code)
		s.Contains(w.Body.String(), `"NOT_FOUND"`)
	})

	s.Run("malformed payload", func() {
		s.service.EXPECT().VerifyPayload(gomock.Any(), "nope").Return(verification.Result{}, credmodels.ErrMalformedPayload)
		s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/verify", map[string]string{"payload": "nope"}).Code)
	})

	s.Run("empty payload never reaches the service", func() {
		s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/verify", map[string]string{"payload": "  "}).Code)
	})
}

func (s *VerificationHandlerSuite) TestVerifyHash() {
	s.service.EXPECT().VerifyHash(gomock.Any(), "deadbeef").
		Return(verification.Result{Status: credmodels.StatusTampered, Reason: credmodels.ReasonRecordAltered}, nil)

	w := s.do(http.MethodGet, "/verify/deadbeef", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"TAMPERED"`)
}

func (s *VerificationHandlerSuite) TestDashboard() {
	s.Run("stats", func() {
		s.service.EXPECT().Stats(gomock.Any()).Return(verification.Stats{
			Workers:      map[credmodels.WorkerType]int{credmodels.WorkerTypeDelivery: 3},
			TotalWorkers: 3,
			OpenAlerts:   2,
		}, nil)
		w := s.do(http.MethodGet, "/dashboard/stats", nil)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"open_alerts":2`)
	})

	s.Run("high risk passes the limit through", func() {
		s.service.EXPECT().HighRiskWorkers(gomock.Any(), 5).Return([]scoremodels.RiskScore{
			{SubjectID: "DRV00009", Score: 74.79, Tier: scoremodels.TierHigh},
		}, nil)
		w := s.do(http.MethodGet, "/dashboard/high-risk?limit=5", nil)
		s.Require().Equal(http.StatusOK, w.Code)

		var resp HighRiskResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(1, resp.Count)
	})

	s.Run("bad limit", func() {
		s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/dashboard/high-risk?limit=0", nil).Code)
		s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/dashboard/alerts?limit=abc", nil).Code)
	})

	s.Run("recent alerts", func() {
		s.service.EXPECT().RecentAlerts(gomock.Any(), 0).Return([]alertmodels.Alert{{
			ID:       id.NewAlertID(),
			WorkerID: "DRV00009",
			Type:     alertmodels.TypeRashDriving,
			Severity: alertmodels.SeverityHigh,
			State:    alertmodels.StateOpen,
			RaisedAt: time.Date(2025, 3, 12, 23, 30, 0, 0, time.UTC),
		}}, nil)
		w := s.do(http.MethodGet, "/dashboard/alerts", nil)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"RashDriving"`)
	})

	s.Run("stats failure", func() {
		s.service.EXPECT().Stats(gomock.Any()).Return(verification.Stats{}, dErrors.New(dErrors.CodeInternal, "boom"))
		s.Equal(http.StatusInternalServerError, s.do(http.MethodGet, "/dashboard/stats", nil).Code)
	})
}

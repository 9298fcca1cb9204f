package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cityledger/internal/platform/middleware"
	"cityledger/internal/proposition/handler/mocks"
	"cityledger/internal/proposition/models"
	"cityledger/internal/proposition/query"
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
	"cityledger/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/handler-mocks.go -package=mocks Service QueryService

type stubValidator struct{ submitter id.Ref }

func (s stubValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token != "valid" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return &middleware.JWTClaims{Submitter: s.submitter}, nil
}

type PropositionHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	queries *mocks.MockQueryService
	router  http.Handler
}

func TestPropositionHandlerSuite(t *testing.T) {
	suite.Run(t, new(PropositionHandlerSuite))
}

func (s *PropositionHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.queries = mocks.NewMockQueryService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(s.service, s.queries, logger, nil, stubValidator{submitter: id.BusinessRef("B1")}, 0)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *PropositionHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer valid")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *PropositionHandlerSuite) decodeError(rec *httptest.ResponseRecorder) map[string]string {
	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *PropositionHandlerSuite) TestPlace() {
	s.Run("orderer defaults to the submitter", func() {
		s.service.EXPECT().Place(gomock.Any(), models.PlaceProposition{
			PropDetails: "10% discount",
			Orderer:     id.BusinessRef("B1"),
		}).Return(&models.Proposition{
			ID: "1", Details: "10% discount", Status: models.StatusPlaced, Owner: id.BusinessRef("B1"),
		}, nil)

		rec := s.do(http.MethodPost, "/transactions/PlaceProposition", map[string]string{"propDetails": "10% discount"})
		s.Equal(http.StatusCreated, rec.Code)

		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("1", resp["propId"])
		s.Equal("PLACED", resp["propStatus"])
		s.Equal("resource:org.cityledger.Business#B1", resp["owner"])
		s.NotContains(resp, "multipassOwner")
	})

	s.Run("explicit orderer uri", func() {
		s.service.EXPECT().Place(gomock.Any(), models.PlaceProposition{
			PropDetails: "bogo",
			Orderer:     id.BusinessRef("B2"),
		}).Return(&models.Proposition{ID: "2"}, nil)

		rec := s.do(http.MethodPost, "/transactions/PlaceProposition", map[string]string{
			"propDetails": "bogo",
			"orderer":     "resource:org.cityledger.Business#B2",
		})
		s.Equal(http.StatusCreated, rec.Code)
	})

	s.Run("missing details never reach the service", func() {
		rec := s.do(http.MethodPost, "/transactions/PlaceProposition", map[string]string{})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal(string(dErrors.CodeValidation), s.decodeError(rec)["error"])
	})

	s.Run("malformed body", func() {
		req := httptest.NewRequest(http.MethodPost, "/transactions/PlaceProposition", bytes.NewBufferString("{"))
		req.Header.Set("Authorization", "Bearer valid")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unauthenticated", func() {
		req := httptest.NewRequest(http.MethodPost, "/transactions/PlaceProposition", bytes.NewBufferString("{}"))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *PropositionHandlerSuite) TestDeliver() {
	s.Run("bare ids are accepted", func() {
		prop := &models.Proposition{ID: "1", Status: models.StatusDelivered, Owner: id.BusinessRef("B1"), Recipient: id.MultipassUserRef("U1")}
		s.service.EXPECT().Deliver(gomock.Any(), models.DeliverProposition{
			Prop:           id.PropositionRef("1"),
			MultipassOwner: id.MultipassUserRef("U1"),
		}).Return(&models.Delivery{
			Proposition: prop,
			User:        &models.MultipassUser{ID: "U1", Props: models.Props{*prop}},
		}, nil)

		rec := s.do(http.MethodPost, "/transactions/DeliverProposition", map[string]string{"prop": "1", "multipassOwner": "U1"})
		s.Equal(http.StatusOK, rec.Code)

		var resp struct {
			Proposition    models.Proposition   `json:"proposition"`
			MultipassOwner models.MultipassUser `json:"multipassOwner"`
		}
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(models.StatusDelivered, resp.Proposition.Status)
		s.Require().Len(resp.MultipassOwner.Props, 1)
		s.Equal(resp.Proposition, resp.MultipassOwner.Props[0])
	})

	s.Run("wrong reference type", func() {
		rec := s.do(http.MethodPost, "/transactions/DeliverProposition", map[string]string{
			"prop":           "resource:org.cityledger.Business#B1",
			"multipassOwner": "U1",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("not found carries the subject", func() {
		s.service.EXPECT().Deliver(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.NotFound("proposition not found", "404"))

		rec := s.do(http.MethodPost, "/transactions/DeliverProposition", map[string]string{"prop": "404", "multipassOwner": "U1"})
		s.Equal(http.StatusNotFound, rec.Code)
		resp := s.decodeError(rec)
		s.Equal("not_found", resp["error"])
		s.Equal("404", resp["subject"])
	})
}

func (s *PropositionHandlerSuite) TestUpdate() {
	s.Run("invalid transition is unprocessable", func() {
		s.service.EXPECT().Update(gomock.Any(), models.UpdateProposition{
			Prop:           id.PropositionRef("1"),
			MultipassOwner: id.MultipassUserRef("U1"),
			PropStatus:     "MAYBE",
		}).Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "status not allowed for update"))

		rec := s.do(http.MethodPost, "/transactions/UpdateProposition", map[string]string{
			"prop": "1", "multipassOwner": "U1", "propStatus": "MAYBE",
		})
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("missing status", func() {
		rec := s.do(http.MethodPost, "/transactions/UpdateProposition", map[string]string{"prop": "1", "multipassOwner": "U1"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("internal errors hide their message", func() {
		s.service.EXPECT().Update(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInternal, "pq: connection refused"))

		rec := s.do(http.MethodPost, "/transactions/UpdateProposition", map[string]string{
			"prop": "1", "multipassOwner": "U1", "propStatus": "ACCEPTED",
		})
		s.Equal(http.StatusInternalServerError, rec.Code)
		s.NotContains(rec.Body.String(), "connection refused")
	})
}

func (s *PropositionHandlerSuite) TestReads() {
	s.Run("get proposition", func() {
		s.service.EXPECT().Get(gomock.Any(), id.PropositionID("7")).Return(&models.Proposition{ID: "7"}, nil)
		rec := s.do(http.MethodGet, "/propositions/7", nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("run query passes parameters", func() {
		s.queries.EXPECT().Run(gomock.Any(), query.SelectPropositionsByOwner, query.Params{"owner": "B1"}).
			Return(nil, nil)
		rec := s.do(http.MethodGet, "/queries/selectPropositionsByOwner?owner=B1", nil)
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"propositions":[]}`, rec.Body.String())
	})

	s.Run("list queries", func() {
		s.queries.EXPECT().Names().Return([]string{query.SelectAllPropositions})
		rec := s.do(http.MethodGet, "/queries", nil)
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"queries":["selectAllPropositions"]}`, rec.Body.String())
	})
}

func TestSubmitterFromUpstreamContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Without a validator, the submitter comes from whatever sits in front.
	h := New(service, mocks.NewMockQueryService(ctrl), logger, nil, nil, 0)
	r := chi.NewRouter()
	h.Register(r)

	service.EXPECT().Place(gomock.Any(), models.PlaceProposition{
		PropDetails: "free coffee",
		Orderer:     id.BusinessRef("B9"),
	}).Return(&models.Proposition{ID: "1"}, nil)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/transactions/PlaceProposition", map[string]string{"propDetails": "free coffee"})
	req = testutil.WithSubmitter(req, id.BusinessRef("B9"))
	rec := testutil.DoRequest(r, req)
	testutil.AssertStatus(t, rec, http.StatusCreated)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadgen/internal/classify"
	"leadgen/internal/models"
	"leadgen/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngestor struct {
	resp *service.CreateLeadResponse
	err  error
}

func (f *fakeIngestor) CreateLead(ctx context.Context, req *service.CreateLeadRequest, hostname, path string) (*service.CreateLeadResponse, error) {
	return f.resp, f.err
}

type fakeStore struct {
	buyer  *models.Buyer
	offers []models.BuyerOffer
	stuck  []models.Lead
}

func (f *fakeStore) GetBuyer(ctx context.Context, id int64) (*models.Buyer, error) { return f.buyer, nil }
func (f *fakeStore) BuyerOffersByBuyer(ctx context.Context, buyerID int64) ([]models.BuyerOffer, error) {
	return f.offers, nil
}
func (f *fakeStore) StuckRoutedLeads(ctx context.Context, olderThan time.Duration, limit int) ([]models.Lead, error) {
	return f.stuck, nil
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.SetupRoutes(r)
	return r
}

func TestCreateLeadAccepted(t *testing.T) {
	ing := &fakeIngestor{resp: &service.CreateLeadResponse{LeadID: 1, Status: models.LeadStatusRouted, SourceID: 1, OfferID: 1, MarketID: 1, VerticalID: 1}}
	h := NewHandler(ing, &fakeStore{})
	r := newTestRouter(h)

	body, _ := json.Marshal(map[string]string{"name": "Jane", "email": "j@x.com", "phone": "+15125550123", "postal_code": "78701"})
	req := httptest.NewRequest(http.MethodPost, "/api/leads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp service.CreateLeadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.LeadStatusRouted, resp.Status)
}

func TestCreateLeadMissingFieldReturns400(t *testing.T) {
	h := NewHandler(&fakeIngestor{}, &fakeStore{})
	r := newTestRouter(h)

	body, _ := json.Marshal(map[string]string{"name": "Jane"})
	req := httptest.NewRequest(http.MethodPost, "/api/leads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateLeadAmbiguousSourceReturns409(t *testing.T) {
	h := NewHandler(&fakeIngestor{err: classify.ErrAmbiguousSourceMapping}, &fakeStore{})
	r := newTestRouter(h)

	body, _ := json.Marshal(map[string]string{"name": "Jane", "email": "j@x.com", "phone": "+15125550123", "postal_code": "78701"})
	req := httptest.NewRequest(http.MethodPost, "/api/leads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHealthCheck(t *testing.T) {
	h := NewHandler(&fakeIngestor{}, &fakeStore{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestGetBuyerNotFound(t *testing.T) {
	h := NewHandler(&fakeIngestor{}, &fakeStore{buyer: nil})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/buyers/42", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStuckLeadsDefaultWindow(t *testing.T) {
	h := NewHandler(&fakeIngestor{}, &fakeStore{stuck: []models.Lead{{ID: 7}}})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/monitoring/stuck-leads", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

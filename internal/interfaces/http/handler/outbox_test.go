package handler

import (
	"errors"
	"net/http"
	"testing"

	eventapp "github.com/erp/stockledger/internal/application/event"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newOutboxRouter(svc *MockDeadLetters) *gin.Engine {
	h := NewOutboxHandler(svc)
	r := newTestRouter()
	r.GET("/events/dead-letters", h.ListDeadLetters)
	r.POST("/events/dead-letters/retry", h.RetryAll)
	r.POST("/events/dead-letters/:id/retry", h.Retry)
	r.GET("/events/entries/:id", h.GetEntry)
	r.GET("/events/stats", h.Stats)
	return r
}

func TestOutboxHandler_ListDeadLetters(t *testing.T) {
	svc := new(MockDeadLetters)
	svc.On("List", mock.Anything, testCompanyID, 2, 10).
		Return([]eventapp.OutboxEntryResponse{{ID: uuid.New(), Status: "DEAD"}}, int64(11), nil)

	w := doJSON(newOutboxRouter(svc), http.MethodGet, "/events/dead-letters?page=2&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(11), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	svc.AssertExpectations(t)
}

func TestOutboxHandler_ListDeadLetters_RejectsPageSize(t *testing.T) {
	svc := new(MockDeadLetters)
	w := doJSON(newOutboxRouter(svc), http.MethodGet, "/events/dead-letters?page_size=9999", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOutboxHandler_Retry(t *testing.T) {
	id := uuid.New()

	t.Run("reset", func(t *testing.T) {
		svc := new(MockDeadLetters)
		svc.On("Retry", mock.Anything, testCompanyID, id).
			Return(&eventapp.OutboxEntryResponse{ID: id, Status: "PENDING"}, nil)

		w := doJSON(newOutboxRouter(svc), http.MethodPost, "/events/dead-letters/"+id.String()+"/retry", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var got eventapp.OutboxEntryResponse
		decodeData(t, w, &got)
		assert.Equal(t, "PENDING", got.Status)
	})

	t.Run("not dead", func(t *testing.T) {
		svc := new(MockDeadLetters)
		svc.On("Retry", mock.Anything, testCompanyID, id).
			Return(nil, shared.NewDomainError(shared.CodeInvalidState, "entry is not dead"))

		w := doJSON(newOutboxRouter(svc), http.MethodPost, "/events/dead-letters/"+id.String()+"/retry", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidState, decode(t, w).Error.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := doJSON(newOutboxRouter(new(MockDeadLetters)), http.MethodPost, "/events/dead-letters/nope/retry", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOutboxHandler_GetEntry_NotFound(t *testing.T) {
	id := uuid.New()
	svc := new(MockDeadLetters)
	svc.On("Get", mock.Anything, testCompanyID, id).Return(nil, shared.ErrNotFound)

	w := doJSON(newOutboxRouter(svc), http.MethodGet, "/events/entries/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOutboxHandler_RetryAll(t *testing.T) {
	svc := new(MockDeadLetters)
	svc.On("RetryAll", mock.Anything, testCompanyID).Return(4, nil)

	w := doJSON(newOutboxRouter(svc), http.MethodPost, "/events/dead-letters/retry", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got RetryAllResponse
	decodeData(t, w, &got)
	assert.Equal(t, 4, got.Reset)
}

func TestOutboxHandler_Stats(t *testing.T) {
	svc := new(MockDeadLetters)
	svc.On("Stats", mock.Anything).Return(&eventapp.OutboxStats{Pending: 2, Dead: 1, Total: 3}, nil)

	w := doJSON(newOutboxRouter(svc), http.MethodGet, "/events/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got eventapp.OutboxStats
	decodeData(t, w, &got)
	assert.Equal(t, int64(3), got.Total)

	failing := new(MockDeadLetters)
	failing.On("Stats", mock.Anything).Return(nil, errors.New("db down"))
	w = doJSON(newOutboxRouter(failing), http.MethodGet, "/events/stats", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

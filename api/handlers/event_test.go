package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"webhook-dispatcher/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(event *models.DomainEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestEmitEvent(t *testing.T) {
	// Setup
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	tests := []struct {
		name       string
		payload    interface{}
		setupMock  func(*MockPublisher)
		wantStatus int
	}{
		{
			name: "Valid event",
			payload: map[string]interface{}{
				"type":    models.EventUploadCompleted,
				"payload": map[string]string{"fileId": "f-1"},
				"source":  "files",
			},
			setupMock: func(m *MockPublisher) {
				m.On("Publish", mock.Anything).Return(nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "Unknown event type",
			payload: map[string]interface{}{
				"type": "file.renamed",
			},
			setupMock:  func(m *MockPublisher) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Missing type",
			payload: map[string]interface{}{
				"payload": map[string]string{"fileId": "f-1"},
			},
			setupMock:  func(m *MockPublisher) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Invalid payload",
			payload:    "invalid",
			setupMock:  func(m *MockPublisher) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Publisher unavailable",
			payload: map[string]interface{}{
				"type": models.EventFileDeleted,
			},
			setupMock: func(m *MockPublisher) {
				m.On("Publish", mock.Anything).Return(errors.New("broker down"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPub := new(MockPublisher)
			tt.setupMock(mockPub)

			handler := NewEventHandler(logger, mockPub)

			payload, _ := json.Marshal(tt.payload)
			req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBuffer(payload))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = req

			handler.Emit(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			mockPub.AssertExpectations(t)

			if tt.wantStatus == http.StatusAccepted {
				var resp map[string]interface{}
				assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp["event_id"])
			}
		})
	}
}

func TestEmitAssignsFreshEventIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockPub := new(MockPublisher)
	var ids []string
	mockPub.On("Publish", mock.Anything).Run(func(args mock.Arguments) {
		ids = append(ids, args.Get(0).(*models.DomainEvent).ID)
	}).Return(nil)

	handler := NewEventHandler(zap.NewNop(), mockPub)

	for i := 0; i < 2; i++ {
		body := []byte(`{"type":"file.deleted"}`)
		req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = req
		handler.Emit(c)
		assert.Equal(t, http.StatusAccepted, w.Code)
	}

	assert.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

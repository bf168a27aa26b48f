package predict

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Predict_PostsJSONContract(t *testing.T) {
	var gotBody Request
	var gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		bs, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(bs, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prediction": "feasible"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, nil)
	raw, err := c.Predict(context.Background(), Request{
		Text:           "budget ₹20 crores",
		NumericSignals: Signals{BudgetCrores: 20, TimelineMonths: 24},
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"prediction": "feasible"}`, string(raw))
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "budget ₹20 crores", gotBody.Text)
	assert.Equal(t, 20.0, gotBody.NumericSignals.BudgetCrores)
	assert.Equal(t, 24.0, gotBody.NumericSignals.TimelineMonths)
}

func TestClient_Predict_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, nil)
	_, err := c.Predict(context.Background(), Request{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_Predict_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := NewClient(srv.URL, time.Second, nil)
	_, err := c.Predict(context.Background(), Request{Text: "x"})
	require.Error(t, err)
}

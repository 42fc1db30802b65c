package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollExtract_CompletesAfterProcessing(t *testing.T) {
	var calls atomic.Int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		resp := ExtractStatusResponse{Success: true, Status: ExtractStatusProcessing}
		if n >= 3 {
			resp.Status = ExtractStatusCompleted
			resp.Data = json.RawMessage(`{"company_name":"Acme"}`)
		}
		json.NewEncoder(w).Encode(resp)
	})

	status, err := PollExtract(context.Background(), c, "ext-1",
		WithPollInterval(time.Millisecond),
		WithPollCap(2*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, ExtractStatusCompleted, status.Status)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestPollExtract_FailedJob(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ExtractStatusResponse{
			Success: false,
			Status:  ExtractStatusFailed,
			Error:   "site unreachable",
		})
	})

	_, err := PollExtract(context.Background(), c, "ext-2", WithPollInterval(time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site unreachable")
}

func TestPollExtract_Timeout(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ExtractStatusResponse{Success: true, Status: ExtractStatusProcessing})
	})

	_, err := PollExtract(context.Background(), c, "ext-3",
		WithPollInterval(5*time.Millisecond),
		WithPollTimeout(20*time.Millisecond),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

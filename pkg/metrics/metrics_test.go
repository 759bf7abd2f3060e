package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mongoinit/pkg/report"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedReport(completed bool) *report.RunReport {
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	r := report.New("betting", start)
	r.Add(report.KindCollection, "users", report.OutcomeCreated, "")
	r.Add(report.KindCollection, "transactions", report.OutcomeExists, "")
	r.Add(report.KindCollection, "games", report.OutcomeExists, "")
	r.Add(report.KindIndex, "users.uid_1", report.OutcomeCreated, "")
	r.Add(report.KindUser, "betting_user", report.OutcomeFailed, "not authorized")
	var err error
	if !completed {
		err = assert.AnError
	}
	r.Finish(start.Add(2*time.Second), err)
	return r
}

func TestObserve(t *testing.T) {
	m := New()
	m.Observe(finishedReport(true))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("collection", "created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("collection", "exists")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("user", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunSuccess))
	assert.NotZero(t, testutil.ToFloat64(m.LastRunTimestamp))
}

func TestObserveFailedRun(t *testing.T) {
	m := New()
	m.Observe(finishedReport(false))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunSuccess))
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.Observe(finishedReport(true))

	require.NoError(t, m.Push(context.Background(), srv.URL, "mongoinit", "betting"))
	assert.Equal(t, "/metrics/job/mongoinit/database/betting", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "mongoinit", "betting")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), srv.URL))
}

package goload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teranos/goload/config"
	"github.com/teranos/goload/requester/httpreq"
	"github.com/teranos/goload/scenario"
	"github.com/teranos/goload/vuser"
)

func TestRunExecutesSingleProcessAttackToCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sc := scenario.New("smoke", 1).
		OnStart(func(u *vuser.User) scenario.TransactionResult {
			req, err := httpreq.New(u.BaseURL(), 2*time.Second)
			if err != nil {
				return scenario.ResultFatalConfig
			}
			u.SetRequester(req)
			return scenario.ResultSuccess
		}).
		Transaction("ping", func(u *vuser.User) scenario.TransactionResult {
			result, err := u.Get(context.Background(), "/ping", "/ping")
			if err != nil || !result.Success {
				return scenario.ResultFailure
			}
			return scenario.ResultSuccess
		}).
		Build()

	cfg := config.Default()
	cfg.Users = 3
	cfg.HatchRate = 1000
	cfg.RunTime = 50 * time.Millisecond
	cfg.Host = srv.URL

	report, err := Run(context.Background(), cfg, sc)
	require.NoError(t, err)
	require.NotNil(t, report)

	bucket, ok := report.Buckets["/ping"]
	require.True(t, ok)
	require.Greater(t, bucket.Total, uint64(0))
	require.Equal(t, bucket.Total, bucket.Successes)
}

func TestExecuteRejectsEmptyRegistry(t *testing.T) {
	a := NewAttack(config.Default())
	_, err := a.Execute(context.Background())
	require.Error(t, err)
}

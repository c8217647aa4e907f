package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"mailpipe/internal/k8s"
	"mailpipe/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

type fakeLauncher struct {
	jobName   string
	image     string
	accounts  []string
	createErr error
}

func (l *fakeLauncher) CreateBackfillJob(_ context.Context, jobName, image string, accounts []string) error {
	l.jobName, l.image, l.accounts = jobName, image, accounts
	return l.createErr
}

func (l *fakeLauncher) GetJobStatus(context.Context, string) (*k8s.JobStatus, error) {
	return nil, errors.New("not implemented")
}

func (l *fakeLauncher) DeleteJob(context.Context, string) error { return nil }

func factoryFor(l JobLauncher, err error) LauncherFactory {
	return func() (JobLauncher, error) { return l, err }
}

func TestTriggerBackfillJobHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		launcher       *fakeLauncher
		factoryErr     error
		expectedStatus int
		check          func(t *testing.T, l *fakeLauncher, resp models.BackfillJobResponse)
	}{
		{
			name:           "selected accounts",
			body:           `{"accounts":["acc1","acc2"]}`,
			launcher:       &fakeLauncher{},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, l *fakeLauncher, resp models.BackfillJobResponse) {
				assert.True(t, resp.Success)
				assert.True(t, strings.HasPrefix(resp.JobName, "mail-backfill-"))
				assert.Equal(t, resp.JobName, l.jobName)
				assert.Equal(t, "img:test", l.image)
				assert.Equal(t, []string{"acc1", "acc2"}, l.accounts)
			},
		},
		{
			name:           "no body backfills all accounts",
			launcher:       &fakeLauncher{},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, l *fakeLauncher, resp models.BackfillJobResponse) {
				assert.True(t, resp.Success)
				assert.Empty(t, l.accounts)
			},
		},
		{
			name:           "cluster unreachable",
			launcher:       &fakeLauncher{},
			factoryErr:     errors.New("no kubeconfig"),
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, _ *fakeLauncher, resp models.BackfillJobResponse) {
				assert.False(t, resp.Success)
				assert.Contains(t, resp.Error, "no kubeconfig")
			},
		},
		{
			name:           "create rejected",
			body:           `{}`,
			launcher:       &fakeLauncher{createErr: errors.New("quota exceeded")},
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, _ *fakeLauncher, resp models.BackfillJobResponse) {
				assert.Contains(t, resp.Error, "quota exceeded")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := TriggerBackfillJobHandler(factoryFor(tt.launcher, tt.factoryErr), "img:test")
			rec := serve(t, http.MethodPost, "/api/admin/backfill-job", tt.body, "/api/admin/backfill-job", h)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			var resp models.BackfillJobResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			tt.check(t, tt.launcher, resp)
		})
	}
}

func TestBackfillJobStatusAndDelete(t *testing.T) {
	cs := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "mail-backfill-1", Namespace: "mailpipe"},
		Status:     batchv1.JobStatus{Active: 1},
	})
	factory := factoryFor(k8s.NewClientWithClientset(cs, ""), nil)
	route := "/api/admin/backfill-job/:jobName"

	rec := serve(t, http.MethodGet, "/api/admin/backfill-job/mail-backfill-1", "", route, GetBackfillJobStatusHandler(factory))
	require.Equal(t, http.StatusOK, rec.Code)
	var status k8s.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "mail-backfill-1", status.JobName)

	rec = serve(t, http.MethodDelete, "/api/admin/backfill-job/mail-backfill-1", "", route, DeleteBackfillJobHandler(factory))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = serve(t, http.MethodGet, "/api/admin/backfill-job/mail-backfill-1", "", route, GetBackfillJobStatusHandler(factory))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, http.MethodDelete, "/api/admin/backfill-job/mail-backfill-1", "", route, DeleteBackfillJobHandler(factory))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackfillJobStatus_ClusterUnreachable(t *testing.T) {
	h := GetBackfillJobStatusHandler(factoryFor(nil, errors.New("no kubeconfig")))
	rec := serve(t, http.MethodGet, "/api/admin/backfill-job/x", "", "/api/admin/backfill-job/:jobName", h)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	domain "github.com/bryanwahyu/trapscan/internal/domain/jobs"
)

const testURL = "https://example.com/terms"

func newTestRegistry(t *testing.T, retention time.Duration) *Registry {
	t.Helper()
	r := NewRegistry(application.SystemClock{}, retention)
	t.Cleanup(r.Close)
	return r
}

func TestUnknownURLIsNone(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	assert.Equal(t, domain.StatusNone, r.Status(testURL).Status)
}

func TestStartCompleteLifecycle(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	job := r.Start(testURL)
	assert.Equal(t, domain.StatusAnalyzing, r.Status(testURL).Status)
	assert.NotEmpty(t, job.ID)

	res := &analysis.Result{URL: testURL, RiskScore: 60}
	require.True(t, r.Complete(job.ID, testURL, res))

	v := r.Status(testURL)
	assert.Equal(t, domain.StatusComplete, v.Status)
	assert.Equal(t, 60, v.Result.RiskScore)

	got, ok := r.Get(testURL)
	require.True(t, ok)
	assert.NotNil(t, got.CompletedAt)
}

func TestFailRecordsKind(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	job := r.Start(testURL)
	r.Fail(job.ID, testURL, apperr.New(apperr.KindNoContent, "no text found on this page"))

	v := r.Status(testURL)
	assert.Equal(t, domain.StatusError, v.Status)
	assert.Equal(t, "no text found on this page", v.Error)
	assert.Equal(t, apperr.KindNoContent, v.ErrorKind)

	job = r.Start(testURL)
	r.Fail(job.ID, testURL, errors.New("boom"))
	assert.Equal(t, apperr.KindUnknown, r.Status(testURL).ErrorKind)
}

func TestRestartOverwritesAndDropsStaleCompletion(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	first := r.Start(testURL)
	second := r.Start(testURL)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, r.Len())

	assert.False(t, r.Complete(first.ID, testURL, &analysis.Result{RiskScore: 1}))
	assert.Equal(t, domain.StatusAnalyzing, r.Status(testURL).Status)

	assert.True(t, r.Complete(second.ID, testURL, &analysis.Result{RiskScore: 2}))
	assert.Equal(t, 2, r.Status(testURL).Result.RiskScore)

	// repeated completion is ignored
	assert.False(t, r.Fail(second.ID, testURL, errors.New("late")))
	assert.Equal(t, domain.StatusComplete, r.Status(testURL).Status)
}

func TestCompletedJobExpires(t *testing.T) {
	r := newTestRegistry(t, 20*time.Millisecond)
	job := r.Start(testURL)
	r.Complete(job.ID, testURL, &analysis.Result{})

	assert.Eventually(t, func() bool {
		return r.Status(testURL).Status == domain.StatusNone
	}, time.Second, 5*time.Millisecond)
}

func TestRestartAfterCompletionIsNotExpiredByOldTimer(t *testing.T) {
	r := newTestRegistry(t, 30*time.Millisecond)
	job := r.Start(testURL)
	r.Complete(job.ID, testURL, &analysis.Result{})
	r.Start(testURL)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, domain.StatusAnalyzing, r.Status(testURL).Status)
}

func TestSubscribeDeliversTerminalJob(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	_, _, ok := r.Subscribe(testURL)
	assert.False(t, ok)

	job := r.Start(testURL)
	ch, cancel, ok := r.Subscribe(testURL)
	require.True(t, ok)
	defer cancel()

	go r.Complete(job.ID, testURL, &analysis.Result{RiskScore: 33})

	select {
	case got := <-ch:
		assert.Equal(t, domain.StatusComplete, got.Status)
		assert.Equal(t, 33, got.Result.RiskScore)
	case <-time.After(time.Second):
		t.Fatal("no job delivered")
	}

	// already finished: immediate delivery
	ch2, _, ok := r.Subscribe(testURL)
	require.True(t, ok)
	got := <-ch2
	assert.Equal(t, job.ID, got.ID)
}

func TestRunning(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	a := r.Start("https://a.example/terms")
	r.Start("https://b.example/terms")
	assert.Equal(t, 2, r.Running())
	r.Complete(a.ID, "https://a.example/terms", &analysis.Result{})
	assert.Equal(t, 1, r.Running())
}

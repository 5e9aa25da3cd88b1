package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildflow/internal/config"
)

func TestNewSchedulerRejectsInvalidInterval(t *testing.T) {
	_, err := NewScheduler([]config.ScheduleConfig{
		{Name: "broken", Every: "often", Jobs: []config.ScheduleJob{{Key: "site-a"}}},
	}, &collectingSubmitter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestSchedulerSubmitsOnTick(t *testing.T) {
	sub := &collectingSubmitter{}
	sch, err := NewScheduler([]config.ScheduleConfig{
		{
			Name:  "fast",
			Every: "20ms",
			Jobs: []config.ScheduleJob{
				{Key: "site-a", Priority: 1, Params: map[string]string{"ref": "main"}},
			},
		},
	}, sub)
	require.NoError(t, err)

	sch.Start(t.Context())
	defer func() { _ = sch.Stop(t.Context()) }()

	waitFor(t, 2*time.Second, func() bool { return len(sub.snapshot()) >= 1 })

	job := sub.snapshot()[0]
	assert.Equal(t, "site-a", job.Key)
	assert.Equal(t, 1, job.Priority)
	assert.Equal(t, "main", job.Params["ref"])
}

func TestTemplateJobs(t *testing.T) {
	jobs := templateJobs([]config.ScheduleJob{
		{Key: "site-a", Priority: 3},
		{Key: "site-b"},
	})
	require.Len(t, jobs, 2)
	assert.Equal(t, 3, jobs[0].Priority)
	assert.Empty(t, jobs[1].Params)
}

package scheduler

import (
	"errors"
	"slices"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/mock"

	"github.com/potatocaustic/real-karma-league/internal/domain/jobscheduler"
	schedulermock "github.com/potatocaustic/real-karma-league/internal/mocks/scheduler"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

func newTestService(t *testing.T, runner JobRunner, schedules Schedules) *Service {
	t.Helper()

	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	svc, err := New(runner, Config{Location: loc, Schedules: schedules, JobTimeout: time.Second}, logging.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}

func defaultSchedules() Schedules {
	return Schedules{
		Sampler:      "* * * * *",
		AutoStop:     "30 23 * * *",
		AutoFinalize: "45 23 * * *",
		Rollover:     "15 3 * * *",
	}
}

func TestNew_RequiresRunner(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Config{}, nil); !errors.Is(err, ErrNilRunner) {
		t.Fatalf("expected ErrNilRunner, got %v", err)
	}
}

func TestRegisterJobs_RegistersEveryScheduledJob(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, schedulermock.NewJobRunner(t), defaultSchedules())
	if err := svc.RegisterJobs(); err != nil {
		t.Fatalf("register jobs: %v", err)
	}

	names := svc.JobNames()
	want := []string{jobscheduler.JobSample, jobscheduler.JobAutoStop, jobscheduler.JobAutoFinalize, jobscheduler.JobDailyRollover}
	if len(names) != len(want) {
		t.Fatalf("expected %d jobs, got %v", len(want), names)
	}
	for _, name := range want {
		if !slices.Contains(names, name) {
			t.Fatalf("job %q not registered: %v", name, names)
		}
	}
}

func TestRegisterJobs_SkipsEmptySchedule(t *testing.T) {
	t.Parallel()

	schedules := defaultSchedules()
	schedules.Rollover = ""
	svc := newTestService(t, schedulermock.NewJobRunner(t), schedules)
	if err := svc.RegisterJobs(); err != nil {
		t.Fatalf("register jobs: %v", err)
	}
	if names := svc.JobNames(); slices.Contains(names, jobscheduler.JobDailyRollover) || len(names) != 3 {
		t.Fatalf("unexpected jobs: %v", names)
	}
}

func TestRegisterJobs_RejectsInvalidCron(t *testing.T) {
	t.Parallel()

	schedules := defaultSchedules()
	schedules.AutoStop = "every night"
	svc := newTestService(t, schedulermock.NewJobRunner(t), schedules)
	if err := svc.RegisterJobs(); err == nil {
		t.Fatalf("expected invalid cron expression to fail")
	}
}

func TestAddJob_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, schedulermock.NewJobRunner(t), Schedules{})
	if _, err := svc.AddJob(" ", "* * * * *", func() {}); !errors.Is(err, ErrEmptyJobName) {
		t.Fatalf("expected ErrEmptyJobName, got %v", err)
	}
	if _, err := svc.AddJob("noop", "", func() {}); !errors.Is(err, ErrEmptyCronExpr) {
		t.Fatalf("expected ErrEmptyCronExpr, got %v", err)
	}
}

func TestJobTasks_RunWithSchedulerTrigger(t *testing.T) {
	t.Parallel()

	runner := schedulermock.NewJobRunner(t)
	runner.On("RunSample", mock.Anything, usecase.TriggerScheduler).
		Return(map[string]usecase.SampleOutcome{"major": {Due: true}}, nil).Once()
	runner.On("RunAutoStop", mock.Anything, usecase.TriggerScheduler).
		Return(nil).Once()
	runner.On("RunAutoFinalize", mock.Anything, usecase.TriggerScheduler).
		Return(usecase.AutoFinalizeResult{}, errors.New("store unavailable")).Once()
	runner.On("RunDailyRollover", mock.Anything, usecase.TriggerScheduler).
		Return(usecase.RolloverResult{Date: "2026-02-28"}, nil).Once()

	svc := newTestService(t, runner, defaultSchedules())
	for _, def := range svc.definitions() {
		svc.wrap(def)()
	}
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, schedulermock.NewJobRunner(t), Schedules{})
	if err := svc.RegisterJobs(); err != nil {
		t.Fatalf("register jobs: %v", err)
	}
	svc.Start()
	if err := svc.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dohr-michael/agentweb/internal/engine"
	"github.com/dohr-michael/agentweb/internal/events"
	"github.com/dohr-michael/agentweb/internal/sessions"
	"github.com/dohr-michael/agentweb/internal/workspace"
)

type engineFunc func(ctx context.Context, req engine.Request) (engine.Result, error)

func (f engineFunc) Run(ctx context.Context, req engine.Request) (engine.Result, error) {
	return f(ctx, req)
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	finished map[sessions.Status]int
}

func (o *countingObserver) SessionStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingObserver) SessionFinished(status sessions.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished == nil {
		o.finished = map[sessions.Status]int{}
	}
	o.finished[status]++
}

func setup(t *testing.T, eng engine.Engine) (*Runner, *sessions.Registry, *countingObserver) {
	t.Helper()
	ws := workspace.NewManager(t.TempDir())
	obs := &countingObserver{}
	r := NewRunner(context.Background(), RunnerConfig{
		Engine:     eng,
		Workspaces: ws,
		StepDelay:  time.Millisecond,
		Observer:   obs,
	})
	return r, sessions.NewRegistry(ws, r, nil), obs
}

func waitTerminal(t *testing.T, s *sessions.Session) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !s.Status().Terminal() {
		if time.Now().After(deadline) {
			t.Fatalf("session %s still %s", s.ID, s.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func kinds(evts []events.Event) []events.Kind {
	out := make([]events.Kind, len(evts))
	for i, e := range evts {
		out[i] = e.Type
	}
	return out
}

func assertSimulated(t *testing.T, s *sessions.Session) {
	t.Helper()
	if s.Status() != sessions.StatusCompleted {
		t.Fatalf("status = %s, want completed", s.Status())
	}
	all := s.Log.All()
	if len(all) != 7 {
		t.Fatalf("expected 7 events, got %d: %v", len(all), kinds(all))
	}
	if all[0].Type != events.KindSystem || all[0].Text() != "Starting task: demo" {
		t.Errorf("first event = %+v", all[0])
	}
	for i, want := range SimulatedSteps {
		sc, ok := all[i+1].Step()
		if !ok || sc.StepNumber != i+1 || sc.Content != want || sc.State != events.StepStateExecuting {
			t.Errorf("step %d = %+v", i+1, all[i+1])
		}
	}
	last := all[6]
	if last.Type != events.KindResult || last.Success == nil || !*last.Success {
		t.Fatalf("last event = %+v", last)
	}
	if last.ExecutionTime == nil || *last.ExecutionTime != 5.0 {
		t.Errorf("execution time = %v", last.ExecutionTime)
	}

	files, err := workspace.NewManager(filepath.Dir(s.Workspace)).List(s.Workspace, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 || files[0].Path != SampleFile {
		t.Fatalf("workspace files = %+v", files)
	}
	data, _ := os.ReadFile(filepath.Join(s.Workspace, SampleFile))
	if string(data) != "print(\"Hello, World!\")\n" {
		t.Errorf("sample content = %q", data)
	}
}

func TestSimulationWithoutEngine(t *testing.T) {
	r, reg, obs := setup(t, nil)

	s, err := reg.Create(sessions.TaskSpec{Task: "demo", Provider: "x", Model: "y", APIKey: "z", MaxSteps: 5})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitTerminal(t, s)
	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	assertSimulated(t, s)
	if obs.started != 1 || obs.finished[sessions.StatusCompleted] != 1 {
		t.Errorf("observer = %d started, %v finished", obs.started, obs.finished)
	}
}

func TestUnavailableEngineFallsBack(t *testing.T) {
	r, reg, _ := setup(t, engine.Unavailable{})
	s, _ := reg.Create(sessions.TaskSpec{Task: "demo", Provider: "x", Model: "y", APIKey: "z", MaxSteps: 5})
	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	assertSimulated(t, s)
}

func TestEngineSuccess(t *testing.T) {
	eng := engineFunc(func(_ context.Context, req engine.Request) (engine.Result, error) {
		req.OnStep("Initializing agent...")
		req.OnStep("Wrote main.go")
		return engine.Result{Success: true, ExecutionTime: 2.5}, nil
	})
	r, reg, _ := setup(t, eng)
	s, _ := reg.Create(sessions.TaskSpec{Task: "build", Provider: "openai", Model: "gpt", APIKey: "k"})
	_ = r.Wait(context.Background())

	if s.Status() != sessions.StatusCompleted {
		t.Fatalf("status = %s", s.Status())
	}
	all := s.Log.All()
	want := []events.Kind{events.KindSystem, events.KindStep, events.KindStep, events.KindResult}
	if fmt.Sprint(kinds(all)) != fmt.Sprint(want) {
		t.Fatalf("kinds = %v, want %v", kinds(all), want)
	}
	if sc, _ := all[2].Step(); sc.StepNumber != 2 {
		t.Errorf("second step numbered %d", sc.StepNumber)
	}
	if *all[3].ExecutionTime != 2.5 || !*all[3].Success {
		t.Errorf("result = %+v", all[3])
	}
}

func TestEngineReportsFailure(t *testing.T) {
	eng := engineFunc(func(context.Context, engine.Request) (engine.Result, error) {
		return engine.Result{ExecutionTime: 1}, fmt.Errorf("%w: rate limited", engine.ErrFailure)
	})
	r, reg, obs := setup(t, eng)
	s, _ := reg.Create(sessions.TaskSpec{Task: "demo"})
	_ = r.Wait(context.Background())

	if s.Status() != sessions.StatusFailed {
		t.Fatalf("status = %s, want failed", s.Status())
	}
	all := s.Log.All()
	last := all[len(all)-1]
	if last.Type != events.KindError || last.Success == nil || *last.Success {
		t.Fatalf("last event = %+v", last)
	}
	if !strings.Contains(last.Text(), "rate limited") {
		t.Errorf("failure reason missing: %q", last.Text())
	}
	if obs.finished[sessions.StatusFailed] != 1 {
		t.Errorf("observer finished = %v", obs.finished)
	}
}

func TestEngineUnsuccessfulResult(t *testing.T) {
	eng := engineFunc(func(context.Context, engine.Request) (engine.Result, error) {
		return engine.Result{Success: false}, nil
	})
	r, reg, _ := setup(t, eng)
	s, _ := reg.Create(sessions.TaskSpec{Task: "demo"})
	_ = r.Wait(context.Background())

	if s.Status() != sessions.StatusFailed {
		t.Fatalf("status = %s, want failed", s.Status())
	}
}

func TestEngineFaultIsError(t *testing.T) {
	eng := engineFunc(func(context.Context, engine.Request) (engine.Result, error) {
		return engine.Result{}, errors.New("disk on fire")
	})
	r, reg, _ := setup(t, eng)
	s, _ := reg.Create(sessions.TaskSpec{Task: "demo"})
	_ = r.Wait(context.Background())

	if s.Status() != sessions.StatusError {
		t.Fatalf("status = %s, want error", s.Status())
	}
	last := s.Log.All()[s.Log.Len()-1]
	if last.Type != events.KindError || last.Text() != "Error: disk on fire" {
		t.Fatalf("last event = %+v", last)
	}
}

func TestEnginePanicIsRecovered(t *testing.T) {
	eng := engineFunc(func(context.Context, engine.Request) (engine.Result, error) {
		panic("boom")
	})
	r, reg, obs := setup(t, eng)
	s, _ := reg.Create(sessions.TaskSpec{Task: "demo"})
	_ = r.Wait(context.Background())

	if s.Status() != sessions.StatusError {
		t.Fatalf("status = %s, want error", s.Status())
	}
	last := s.Log.All()[s.Log.Len()-1]
	if !strings.Contains(last.Text(), "boom") {
		t.Fatalf("last event = %+v", last)
	}
	if obs.finished[sessions.StatusError] != 1 {
		t.Errorf("observer finished = %v", obs.finished)
	}
}

func TestCancelledSimulationEndsInError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ws := workspace.NewManager(t.TempDir())
	r := NewRunner(ctx, RunnerConfig{Workspaces: ws, StepDelay: time.Hour})
	reg := sessions.NewRegistry(ws, r, nil)

	s, _ := reg.Create(sessions.TaskSpec{Task: "demo"})
	time.Sleep(20 * time.Millisecond)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := r.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if s.Status() != sessions.StatusError {
		t.Fatalf("status = %s, want error", s.Status())
	}
}

func TestCreateDoesNotBlockOnExecution(t *testing.T) {
	release := make(chan struct{})
	eng := engineFunc(func(context.Context, engine.Request) (engine.Result, error) {
		<-release
		return engine.Result{Success: true}, nil
	})
	r, reg, _ := setup(t, eng)

	start := time.Now()
	s, err := reg.Create(sessions.TaskSpec{Task: "slow"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Create blocked on the task")
	}
	if s.Status().Terminal() {
		t.Fatal("session finished before the engine returned")
	}

	close(release)
	_ = r.Wait(context.Background())
	if s.Status() != sessions.StatusCompleted {
		t.Fatalf("status = %s", s.Status())
	}
}

func TestManySessionsInterleave(t *testing.T) {
	r, reg, obs := setup(t, nil)
	var created []*sessions.Session
	for i := 0; i < 10; i++ {
		s, err := reg.Create(sessions.TaskSpec{Task: "demo"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		created = append(created, s)
	}
	_ = r.Wait(context.Background())

	for _, s := range created {
		assertSimulated(t, s)
	}
	if obs.finished[sessions.StatusCompleted] != 10 {
		t.Errorf("observer finished = %v", obs.finished)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	eng := engineFunc(func(context.Context, engine.Request) (engine.Result, error) {
		<-release
		return engine.Result{Success: true}, nil
	})
	r, reg, _ := setup(t, eng)
	reg.Create(sessions.TaskSpec{Task: "slow"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

package frame

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestTimingString(t *testing.T) {
	tests := []struct {
		timing Timing
		want   string
	}{
		{FirstFrameInitializing, "FirstFrameInitializing"},
		{BeforeRendering, "BeforeRendering"},
		{EndOfFrame, "EndOfFrame"},
		{Timing(42), "Timing(42)"},
	}
	for _, tt := range tests {
		if got := tt.timing.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTimings(t *testing.T) {
	first := Timings(true)
	if len(first) != 10 || first[0] != FirstFrameInitializing || first[9] != EndOfFrame {
		t.Errorf("Timings(true) = %v", first)
	}
	rest := Timings(false)
	if len(rest) != 9 || rest[0] != FrameInitializing {
		t.Errorf("Timings(false) = %v", rest)
	}
}

// runFrame runs every timing of one frame.
func runFrame(s *Scheduler) {
	for _, timing := range Timings(false) {
		s.Run(timing)
	}
}

func TestTaskResumesAtAwaitedTimings(t *testing.T) {
	s := NewScheduler()
	var log []string
	s.Start(context.Background(), EarlyUpdate, "a", func(task *Task) error {
		log = append(log, "start")
		for i := 0; i < 2; i++ {
			if !task.Await(BeforeRendering) {
				return nil
			}
			log = append(log, "before")
			if !task.Await(AfterRendering) {
				return nil
			}
			log = append(log, "after")
		}
		return nil
	})

	runFrame(s)
	runFrame(s)
	want := []string{"start", "before", "after", "before", "after"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestTasksRunInStartOrder(t *testing.T) {
	s := NewScheduler()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		s.Start(context.Background(), Update, name, func(task *Task) error {
			order = append(order, task.Name())
			return nil
		})
	}
	s.Run(Update)
	if got := strings.Join(order, ","); got != "first,second,third" {
		t.Errorf("order = %s", got)
	}
}

func TestAwaitSameTimingWaitsForNextRun(t *testing.T) {
	s := NewScheduler()
	n := 0
	s.Start(context.Background(), Update, "loop", func(task *Task) error {
		for {
			n++
			if !task.Await(Update) {
				return nil
			}
		}
	})
	s.Run(Update)
	if n != 1 {
		t.Fatalf("resumed %d times in one Run, want 1", n)
	}
	s.Run(Update)
	if n != 2 {
		t.Errorf("resumed %d times after two Runs, want 2", n)
	}
	s.Stop()
}

func TestCancelledTaskFinishesInsideRun(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	cleaned := false
	task := s.Start(ctx, EarlyUpdate, "render", func(task *Task) error {
		for task.Await(BeforeRendering) {
		}
		cleaned = true
		return nil
	})
	runFrame(s)
	if task.Waiting() != BeforeRendering {
		t.Fatalf("Waiting() = %v", task.Waiting())
	}

	cancel()
	if cleaned {
		t.Fatal("task cleaned up before Run")
	}
	s.Run(FrameInitializing)
	if !cleaned || !task.Finished() {
		t.Error("cancelled task did not finish inside Run")
	}
	select {
	case <-task.Done():
	default:
		t.Error("Done() not closed")
	}
}

func TestAwaitReturnsFalseWhenCancelled(t *testing.T) {
	s := NewScheduler()
	var got []bool
	s.Start(context.Background(), Update, "self", func(task *Task) error {
		task.Cancel()
		got = append(got, task.Await(Rendering), task.Await(EndOfFrame))
		return nil
	})
	s.Run(Update)
	if !reflect.DeepEqual(got, []bool{false, false}) {
		t.Errorf("Await after Cancel = %v", got)
	}
}

func TestStopEndsAllTasks(t *testing.T) {
	s := NewScheduler()
	ended := 0
	var tasks []*Task
	for range 3 {
		tasks = append(tasks, s.Start(context.Background(), EarlyUpdate, "t", func(task *Task) error {
			for task.Await(Update) {
			}
			ended++
			return nil
		}))
	}
	s.Run(EarlyUpdate)
	s.Stop()
	if ended != 3 {
		t.Errorf("ended = %d, want 3", ended)
	}
	for _, task := range tasks {
		if !task.Finished() {
			t.Error("task not finished after Stop")
		}
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d", s.Len())
	}

	late := s.Start(context.Background(), Update, "late", func(task *Task) error {
		if task.Await(Update) {
			t.Error("task started after Stop resumed")
		}
		return nil
	})
	s.Run(Update)
	if !late.Finished() {
		t.Error("task started after Stop is not finished")
	}
}

func TestTaskStoppingItsScheduler(t *testing.T) {
	s := NewScheduler()
	var awaited bool
	task := s.Start(context.Background(), Update, "quit", func(task *Task) error {
		s.Stop()
		awaited = task.Await(Rendering)
		return nil
	})
	s.Run(Update)
	if awaited {
		t.Error("Await returned true after Stop")
	}
	if !task.Finished() || s.Len() != 0 {
		t.Error("self-stopping task not finished")
	}
}

func TestTaskErrorAndPanic(t *testing.T) {
	s := NewScheduler()
	boom := errors.New("boom")
	failing := s.Start(context.Background(), Update, "fail", func(*Task) error { return boom })
	panicking := s.Start(context.Background(), Update, "panic", func(*Task) error { panic("bad") })

	if failing.Err() != nil {
		t.Error("Err() before finish should be nil")
	}
	s.Run(Update)
	if !errors.Is(failing.Err(), boom) {
		t.Errorf("Err() = %v, want boom", failing.Err())
	}
	if err := panicking.Err(); err == nil || !strings.Contains(err.Error(), "bad") {
		t.Errorf("panic Err() = %v", err)
	}
}

func TestUnstartedTaskCancelled(t *testing.T) {
	s := NewScheduler()
	var awaited, ran bool
	task := s.Start(context.Background(), Rendering, "never", func(task *Task) error {
		ran = true
		awaited = task.Await(EndOfFrame)
		return nil
	})
	task.Cancel()
	s.Run(Update)
	if !ran {
		t.Error("cancelled task body did not run to completion")
	}
	if awaited {
		t.Error("Await returned true in a cancelled task")
	}
	if !task.Finished() {
		t.Error("cancelled task not finished")
	}
}

func TestStartOnStoppedScheduler(t *testing.T) {
	s := NewScheduler()
	s.Stop()
	var ran, awaited bool
	task := s.Start(context.Background(), Update, "late", func(task *Task) error {
		ran = true
		awaited = task.Await(Rendering)
		return nil
	})
	if !ran {
		t.Error("body of a task started on a stopped scheduler did not run")
	}
	if awaited {
		t.Error("Await returned true on a stopped scheduler")
	}
	if !task.Finished() || s.Len() != 0 {
		t.Errorf("Finished() = %v, Len() = %d", task.Finished(), s.Len())
	}
	select {
	case <-task.Done():
	default:
		t.Error("Done() not closed")
	}
}

func TestAwaitOutsideTaskPanics(t *testing.T) {
	s := NewScheduler()
	task := s.Start(context.Background(), Update, "t", func(task *Task) error {
		task.Await(Rendering)
		return nil
	})
	defer func() {
		if recover() == nil {
			t.Error("Await outside the task body did not panic")
		}
		s.Stop()
	}()
	task.Await(Update)
}

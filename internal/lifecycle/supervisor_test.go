package lifecycle

import (
	"context"
	"errors"
	"testing"
)

func recorder() (*[]string, func(string) Component) {
	var events []string
	build := func(name string) Component {
		return Component{
			Name: name,
			Start: func(ctx context.Context) error {
				events = append(events, "start:"+name)
				return nil
			},
			Stop: func(ctx context.Context) error {
				events = append(events, "stop:"+name)
				return nil
			},
		}
	}
	return &events, build
}

func TestSupervisor_StartsInOrderStopsInReverseWithSinkLast(t *testing.T) {
	events, build := recorder()

	sup := NewSupervisor(nil,
		build("sink"),
		build("admin"),
		build("handler"),
	)

	if err := sup.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"start:sink", "start:admin", "start:handler",
		"stop:handler", "stop:admin", "stop:sink",
	}
	if !equal(*events, want) {
		t.Errorf("got %v, want %v", *events, want)
	}
}

func TestSupervisor_FailedStepUnwindsWhatStarted(t *testing.T) {
	events, build := recorder()

	failing := build("storage")
	failing.Start = func(ctx context.Context) error {
		return errors.New("boom")
	}

	sup := NewSupervisor(nil,
		build("sink"),
		build("admin"),
		failing,
		build("handler"),
	)

	err := sup.Start(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}

	want := []string{"start:sink", "start:admin", "stop:admin", "stop:sink"}
	if !equal(*events, want) {
		t.Errorf("got %v, want %v", *events, want)
	}
}

func TestSupervisor_StopRequestedDuringStartAborts(t *testing.T) {
	_, build := recorder()

	var sup *Supervisor
	admin := build("admin")
	admin.Start = func(ctx context.Context) error {
		sup.RequestStop()
		return nil
	}

	sup = NewSupervisor(nil,
		build("sink"),
		admin,
		build("handler"),
	)

	err := sup.Start(context.Background())
	if !errors.Is(err, ErrStopRequested) {
		t.Errorf("expected ErrStopRequested, got %v", err)
	}
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	events, build := recorder()

	sup := NewSupervisor(nil, build("sink"), build("handler"))

	if err := sup.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	afterFirst := len(*events)

	if err := sup.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(*events) != afterFirst {
		t.Errorf("expected a second Stop to be a no-op, event count grew from %d to %d", afterFirst, len(*events))
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

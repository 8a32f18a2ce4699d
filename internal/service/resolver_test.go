package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/LeventeLantos/meme-forwarder/internal/model"
	"github.com/LeventeLantos/meme-forwarder/internal/service"
)

func TestResolver_OrderAndDedup(t *testing.T) {
	t.Parallel()

	p := newFakePlatform()
	p.addChannel("memes", 1, 100)
	p.addChannel("memes", 2, 200)
	p.addChannel("cats", 3, 300)
	p.addChannel("cats", 1, 100)
	p.addChannel("other", 4, 400)

	r := service.NewResolver(p, 0.5, 5, nil)

	got, err := r.Resolve(context.Background(), []string{"memes", "cats"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	wantIDs := []int64{1, 2, 3}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d channels, got %d: %+v", len(wantIDs), len(got), got)
	}
	for i, id := range wantIDs {
		if got[i].Channel.ID != id {
			t.Fatalf("position %d: expected channel %d, got %d", i, id, got[i].Channel.ID)
		}
	}
	if got[0].Channel.Folder != "memes" || got[2].Channel.Folder != "cats" {
		t.Fatalf("unexpected folders: %q %q", got[0].Channel.Folder, got[2].Channel.Folder)
	}
	if got[1].Subscribers != 200 || got[1].Involvement != 100 {
		t.Fatalf("unexpected engagement: %+v", got[1])
	}
}

func TestResolver_MissingFolderIsIgnored(t *testing.T) {
	t.Parallel()

	p := newFakePlatform()
	p.addChannel("memes", 1, 100)

	r := service.NewResolver(p, 1, 5, nil)

	got, err := r.Resolve(context.Background(), []string{"nope", "memes"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got) != 1 || got[0].Channel.ID != 1 {
		t.Fatalf("expected only channel 1, got %+v", got)
	}
}

func TestResolver_SkipsUnavailableChannel(t *testing.T) {
	t.Parallel()

	p := newFakePlatform()
	p.addChannel("memes", 1, 100)
	p.addChannel("memes", 2, 200)
	p.addChannel("memes", 3, 300)
	p.infoErrs[1] = []error{fmt.Errorf("get full channel: %w", model.ErrChannelUnavailable)}
	p.infoErrs[2] = []error{errors.New("unexpected payload")}

	r := service.NewResolver(p, 1, 5, nil)

	got, err := r.Resolve(context.Background(), []string{"memes"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got) != 1 || got[0].Channel.ID != 3 {
		t.Fatalf("expected only channel 3, got %+v", got)
	}
	if p.infoCalls[1] != 1 {
		t.Fatalf("unavailable channel should not be retried, got %d calls", p.infoCalls[1])
	}
}

func TestResolver_RetriesFloodWait(t *testing.T) {
	t.Parallel()

	p := newFakePlatform()
	p.addChannel("memes", 1, 100)
	p.infoErrs[1] = []error{
		&model.FloodWaitError{Wait: 3 * time.Second},
		&model.FloodWaitError{Wait: 7 * time.Second},
	}

	clock := newFakeClock()
	r := service.NewResolver(p, 1, 5, nil).WithSleep(clock.Sleep)

	got, err := r.Resolve(context.Background(), []string{"memes"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got) != 1 || got[0].Subscribers != 100 {
		t.Fatalf("expected resolved channel, got %+v", got)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 3*time.Second || sleeps[1] != 7*time.Second {
		t.Fatalf("expected sleeps [3s 7s], got %v", sleeps)
	}
}

func TestResolver_FloodWaitBudgetExhausted(t *testing.T) {
	t.Parallel()

	p := newFakePlatform()
	p.addChannel("memes", 1, 100)
	p.addChannel("memes", 2, 200)
	for i := 0; i < 10; i++ {
		p.infoErrs[1] = append(p.infoErrs[1], &model.FloodWaitError{Wait: time.Second})
	}

	clock := newFakeClock()
	r := service.NewResolver(p, 1, 3, nil).WithSleep(clock.Sleep)

	got, err := r.Resolve(context.Background(), []string{"memes"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got) != 1 || got[0].Channel.ID != 2 {
		t.Fatalf("expected only channel 2, got %+v", got)
	}
	if p.infoCalls[1] != 3 {
		t.Fatalf("expected 3 attempts, got %d", p.infoCalls[1])
	}
	if n := len(clock.Sleeps()); n != 2 {
		t.Fatalf("expected 2 sleeps, got %d", n)
	}
}

func TestResolver_FolderListError(t *testing.T) {
	t.Parallel()

	p := newFakePlatform()
	p.foldersErr = errors.New("connection reset")

	r := service.NewResolver(p, 1, 5, nil)

	if _, err := r.Resolve(context.Background(), []string{"memes"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestResolver_ContextCanceledDuringWait(t *testing.T) {
	t.Parallel()

	p := newFakePlatform()
	p.addChannel("memes", 1, 100)
	p.infoErrs[1] = []error{&model.FloodWaitError{Wait: time.Minute}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := service.NewResolver(p, 1, 5, nil)

	_, err := r.Resolve(ctx, []string{"memes"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

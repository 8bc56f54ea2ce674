package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cppla/piazza/models"
)

func TestListingsRefreshBeforeFiltering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.post(t, "alice", models.TopicTech)
	f.clock.Advance(time.Hour)
	fresh := f.post(t, "bob", models.TopicTech)
	f.post(t, "carol", models.TopicHealth)

	all, err := f.query.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAll = %d posts", len(all))
	}

	expired, err := f.query.ListExpiredByTopic(ctx, "Tech")
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 0 {
		t.Fatalf("nothing should be expired yet: %d", len(expired))
	}

	// Only the first Tech post has reached its expiry; no per-post refresh ran.
	f.clock.Set(old.ExpiresAt)
	expired, err = f.query.ListExpiredByTopic(ctx, "Tech")
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("expired = %+v", expired)
	}

	tech, err := f.query.ListByTopic(ctx, "Tech")
	if err != nil {
		t.Fatal(err)
	}
	if len(tech) != 2 || tech[0].ID != fresh.ID {
		t.Fatalf("want newest first, got %+v", tech)
	}

	mine, err := f.query.ListByAuthor(ctx, "carol")
	if err != nil || len(mine) != 1 {
		t.Fatalf("ListByAuthor = %v, %v", mine, err)
	}

	if _, err := f.query.ListByTopic(ctx, "Cooking"); !errors.Is(err, ErrInvalidTopic) {
		t.Fatalf("err = %v, want ErrInvalidTopic", err)
	}
	if _, err := f.query.ListExpiredByTopic(ctx, ""); !errors.Is(err, ErrInvalidTopic) {
		t.Fatalf("err = %v, want ErrInvalidTopic", err)
	}
}

func TestEmptyListingIsEmptySlice(t *testing.T) {
	f := newFixture(t)
	posts, err := f.query.ListByTopic(context.Background(), "Sports")
	if err != nil {
		t.Fatal(err)
	}
	if posts == nil || len(posts) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", posts)
	}
	top, err := f.query.TopPostByTopic(context.Background(), "Sports")
	if err != nil || top != nil {
		t.Fatalf("TopPostByTopic on empty topic = %v, %v", top, err)
	}
}

func TestTopPostByTopic(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	ctx := context.Background()
	first := f.post(t, "alice", models.TopicPolitics)
	f.clock.Advance(time.Minute)
	second := f.post(t, "bob", models.TopicPolitics)
	f.clock.Advance(time.Minute)
	busy := f.post(t, "carol", models.TopicPolitics)

	vote := func(id, user string, a VoteAction) {
		t.Helper()
		if _, err := f.svc.ApplyVote(ctx, id, user, a); err != nil {
			t.Fatal(err)
		}
	}
	vote(first.ID, "bob", VoteLike)
	vote(second.ID, "alice", VoteDislike)

	top, err := f.query.TopPostByTopic(ctx, "Politics")
	if err != nil {
		t.Fatal(err)
	}
	if top.ID != first.ID {
		t.Fatalf("tie should go to the earliest post, got %s", top.Title)
	}

	vote(busy.ID, "alice", VoteDislike)
	vote(busy.ID, "dave", VoteLike)
	top, err = f.query.TopPostByTopic(ctx, "Politics")
	if err != nil {
		t.Fatal(err)
	}
	if top.ID != busy.ID || top.Score() != 2 {
		t.Fatalf("top = %s score %d", top.ID, top.Score())
	}
}

package repos_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	"github.com/soreniverson/shipped-backend/internal/repos"
	"github.com/soreniverson/shipped-backend/internal/repos/testutil"
	"github.com/soreniverson/shipped-backend/internal/types"
)

func TestRawMessageUpsertDeduplicates(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	p := testutil.SeedProject(t, gdb)
	src := testutil.SeedSource(t, gdb, p.ID, types.SourceTypeSlack)

	repo := repos.NewRawMessageRepo(gdb, log)
	dbc := dbctx.New(context.Background())

	first, inserted, err := repo.Upsert(dbc, &types.RawMessage{
		ProjectID:  p.ID,
		SourceID:   src.ID,
		ExternalID: "C1:1700000000.000100",
		Body:       "please add dark mode",
		Status:     types.RawMessageStatusPending,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !inserted {
		t.Fatal("first delivery should insert")
	}

	second, inserted, err := repo.Upsert(dbc, &types.RawMessage{
		ProjectID:  p.ID,
		SourceID:   src.ID,
		ExternalID: "C1:1700000000.000100",
		Body:       "please add dark mode (redelivered)",
		Status:     types.RawMessageStatusPending,
	})
	if err != nil {
		t.Fatalf("duplicate upsert: %v", err)
	}
	if inserted {
		t.Fatal("duplicate delivery must not insert")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate should return the original row: %s vs %s", second.ID, first.ID)
	}
	if second.Body != "please add dark mode" {
		t.Fatalf("duplicate must not overwrite the original body: %q", second.Body)
	}

	// Same external id under a different source is a distinct message.
	otherSrc := testutil.SeedSource(t, gdb, p.ID, types.SourceTypeSlack)
	_, inserted, err = repo.Upsert(dbc, &types.RawMessage{
		ProjectID:  p.ID,
		SourceID:   otherSrc.ID,
		ExternalID: "C1:1700000000.000100",
		Body:       "same ts, different workspace",
		Status:     types.RawMessageStatusPending,
	})
	if err != nil {
		t.Fatalf("cross-source upsert: %v", err)
	}
	if !inserted {
		t.Fatal("same external id under another source should insert")
	}
}

func TestRawMessageTransitionStatus(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	p := testutil.SeedProject(t, gdb)
	src := testutil.SeedSource(t, gdb, p.ID, types.SourceTypeSlack)
	m := testutil.SeedMessage(t, gdb, p.ID, src.ID, "C1:1")

	repo := repos.NewRawMessageRepo(gdb, log)
	dbc := dbctx.New(context.Background())

	ok, err := repo.TransitionStatus(dbc, m.ID,
		[]string{types.RawMessageStatusPending, types.RawMessageStatusProcessing},
		types.RawMessageStatusProcessing, "")
	if err != nil || !ok {
		t.Fatalf("pending -> processing: ok=%v err=%v", ok, err)
	}

	ok, err = repo.TransitionStatus(dbc, m.ID,
		[]string{types.RawMessageStatusProcessing},
		types.RawMessageStatusProcessed, "")
	if err != nil || !ok {
		t.Fatalf("processing -> processed: ok=%v err=%v", ok, err)
	}
	got, err := repo.GetByID(dbc, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ProcessedAt == nil {
		t.Fatal("processed_at should be stamped on terminal success")
	}

	// A stale worker trying to re-enter processing loses the race.
	ok, err = repo.TransitionStatus(dbc, m.ID,
		[]string{types.RawMessageStatusPending, types.RawMessageStatusProcessing},
		types.RawMessageStatusProcessing, "")
	if err != nil {
		t.Fatalf("stale transition: %v", err)
	}
	if ok {
		t.Fatal("processed row must not re-enter processing")
	}
}

func TestRawMessageCountByStatus(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	p := testutil.SeedProject(t, gdb)
	src := testutil.SeedSource(t, gdb, p.ID, types.SourceTypeSlack)

	repo := repos.NewRawMessageRepo(gdb, log)
	dbc := dbctx.New(context.Background())

	testutil.SeedMessage(t, gdb, p.ID, src.ID, "a")
	testutil.SeedMessage(t, gdb, p.ID, src.ID, "b")
	errMsg := testutil.SeedMessage(t, gdb, p.ID, src.ID, "c")
	if _, err := repo.TransitionStatus(dbc, errMsg.ID, nil, types.RawMessageStatusError, "extraction failed after 3 attempts"); err != nil {
		t.Fatalf("mark error: %v", err)
	}

	counts, err := repo.CountByStatus(dbc, src.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[types.RawMessageStatusPending] != 2 {
		t.Fatalf("pending = %d, want 2", counts[types.RawMessageStatusPending])
	}
	if counts[types.RawMessageStatusError] != 1 {
		t.Fatalf("error = %d, want 1", counts[types.RawMessageStatusError])
	}

	// Counts are scoped to the source, not the project.
	empty, err := repo.CountByStatus(dbc, uuid.New())
	if err != nil {
		t.Fatalf("count unknown source: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("unknown source should have no counts, got %v", empty)
	}
}

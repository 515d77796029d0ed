package repos_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/soreniverson/shipped-backend/internal/pkg/dbctx"
	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
	"github.com/soreniverson/shipped-backend/internal/repos"
	"github.com/soreniverson/shipped-backend/internal/repos/testutil"
	"github.com/soreniverson/shipped-backend/internal/types"
	"github.com/soreniverson/shipped-backend/internal/vector"
)

func vecClose(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("vector length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("vector[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestClusterCreateSeededAndAssignMember(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	p := testutil.SeedProject(t, gdb)
	src := testutil.SeedSource(t, gdb, p.ID, types.SourceTypeSlack)
	m := testutil.SeedMessage(t, gdb, p.ID, src.ID, "C1:seed")

	repo := repos.NewClusterRepo(gdb, log)
	feedback := repos.NewFeedbackRepo(gdb, log)
	dbc := dbctx.New(context.Background())

	f1 := testutil.SeedFeedback(t, gdb, p.ID, m.ID, 0)
	v1 := []float64{1, 0, 0}
	if err := feedback.SetEmbedding(dbc, f1.ID, v1); err != nil {
		t.Fatalf("set embedding: %v", err)
	}

	c, err := repo.CreateSeeded(dbc, f1, v1)
	if err != nil {
		t.Fatalf("create seeded: %v", err)
	}
	if c.MemberCount != 1 || c.TotalMentions != 1 {
		t.Fatalf("seeded cluster counts = (%d, %d), want (1, 1)", c.MemberCount, c.TotalMentions)
	}
	vecClose(t, c.CentroidVector(), v1)

	// Seeding again for the same feedback returns the existing cluster.
	again, err := repo.CreateSeeded(dbc, f1, v1)
	if err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	if again.ID != c.ID {
		t.Fatalf("re-seed should return the existing cluster: %s vs %s", again.ID, c.ID)
	}

	// A second member folds into the centroid as the incremental mean.
	f2 := testutil.SeedFeedback(t, gdb, p.ID, m.ID, 1)
	v2 := []float64{0, 1, 0}
	if err := feedback.SetEmbedding(dbc, f2.ID, v2); err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	attached, err := repo.AssignMember(dbc, f2.ID, c.ID, v2)
	if err != nil {
		t.Fatalf("assign member: %v", err)
	}
	if attached != c.ID {
		t.Fatalf("attached to %s, want %s", attached, c.ID)
	}

	c2, err := repo.GetByID(dbc, c.ID)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	if c2.MemberCount != 2 {
		t.Fatalf("member_count = %d, want 2", c2.MemberCount)
	}
	vecClose(t, c2.CentroidVector(), vector.IncrementalMean(v1, 1, v2))

	// Replaying the assignment is a no-op: same membership, same counts.
	replayed, err := repo.AssignMember(dbc, f2.ID, c.ID, v2)
	if err != nil {
		t.Fatalf("replay assign: %v", err)
	}
	if replayed != c.ID {
		t.Fatalf("replay reported %s, want %s", replayed, c.ID)
	}
	c3, err := repo.GetByID(dbc, c.ID)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	if c3.MemberCount != 2 {
		t.Fatalf("replay changed member_count to %d", c3.MemberCount)
	}
	vecClose(t, c3.CentroidVector(), c2.CentroidVector())

	// Pointing an already-clustered row at another cluster reports the
	// row's actual home and leaves both clusters untouched.
	f3 := testutil.SeedFeedback(t, gdb, p.ID, m.ID, 2)
	v3 := []float64{0, 0, 1}
	if err := feedback.SetEmbedding(dbc, f3.ID, v3); err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	other, err := repo.CreateSeeded(dbc, f3, v3)
	if err != nil {
		t.Fatalf("seed other: %v", err)
	}
	home, err := repo.AssignMember(dbc, f2.ID, other.ID, v2)
	if err != nil {
		t.Fatalf("cross assign: %v", err)
	}
	if home != c.ID {
		t.Fatalf("reported home %s, want %s", home, c.ID)
	}
	otherAfter, err := repo.GetByID(dbc, other.ID)
	if err != nil {
		t.Fatalf("get other: %v", err)
	}
	if otherAfter.MemberCount != 1 {
		t.Fatalf("losing cluster mutated: member_count = %d", otherAfter.MemberCount)
	}

	// A cluster that was merged or deleted out from under the caller is
	// reported as missing so selection can rerun.
	if _, err := repo.AssignMember(dbc, f2.ID, uuid.New(), v2); !errors.Is(err, errorsx.ErrNotFound) {
		t.Fatalf("missing cluster should be not found, got %v", err)
	}
}

func TestClusterMergeInto(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	p := testutil.SeedProject(t, gdb)
	src := testutil.SeedSource(t, gdb, p.ID, types.SourceTypeSlack)
	m := testutil.SeedMessage(t, gdb, p.ID, src.ID, "C1:merge")

	repo := repos.NewClusterRepo(gdb, log)
	feedback := repos.NewFeedbackRepo(gdb, log)
	dbc := dbctx.New(context.Background())

	fa := testutil.SeedFeedback(t, gdb, p.ID, m.ID, 0)
	fb := testutil.SeedFeedback(t, gdb, p.ID, m.ID, 1)
	va := []float64{1, 0}
	vb := []float64{0, 1}
	if err := feedback.SetEmbedding(dbc, fa.ID, va); err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	if err := feedback.SetEmbedding(dbc, fb.ID, vb); err != nil {
		t.Fatalf("set embedding: %v", err)
	}

	target, err := repo.CreateSeeded(dbc, fa, va)
	if err != nil {
		t.Fatalf("seed target: %v", err)
	}
	source, err := repo.CreateSeeded(dbc, fb, vb)
	if err != nil {
		t.Fatalf("seed source: %v", err)
	}

	merged, err := repo.MergeInto(dbc, target.ID, source.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.MemberCount != 2 {
		t.Fatalf("merged member_count = %d, want 2", merged.MemberCount)
	}
	if merged.TotalMentions != 2 {
		t.Fatalf("merged total_mentions = %d, want 2", merged.TotalMentions)
	}
	// Centroid is recomputed from the raw member vectors, not the two means.
	vecClose(t, merged.CentroidVector(), vector.Mean([][]float64{va, vb}))

	gone, err := repo.GetByID(dbc, source.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if gone != nil {
		t.Fatal("source cluster should be deleted after merge")
	}

	members, err := feedback.ListByCluster(dbc, target.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("target should own both members, got %d", len(members))
	}

	// Self-merge is rejected outright.
	if _, err := repo.MergeInto(dbc, target.ID, target.ID); !errors.Is(err, errorsx.ErrInvalidArgument) {
		t.Fatalf("self-merge should be invalid, got %v", err)
	}
	// Merging a missing cluster is NotFound.
	if _, err := repo.MergeInto(dbc, target.ID, uuid.New()); !errors.Is(err, errorsx.ErrNotFound) {
		t.Fatalf("missing source should be not found, got %v", err)
	}
}

func TestClusterDeleteWithUnlink(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	p := testutil.SeedProject(t, gdb)
	src := testutil.SeedSource(t, gdb, p.ID, types.SourceTypeSlack)
	m := testutil.SeedMessage(t, gdb, p.ID, src.ID, "C1:del")

	repo := repos.NewClusterRepo(gdb, log)
	feedback := repos.NewFeedbackRepo(gdb, log)
	dbc := dbctx.New(context.Background())

	f := testutil.SeedFeedback(t, gdb, p.ID, m.ID, 0)
	v := []float64{1, 0}
	if err := feedback.SetEmbedding(dbc, f.ID, v); err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	c, err := repo.CreateSeeded(dbc, f, v)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := repo.DeleteWithUnlink(dbc, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	survivor, err := feedback.GetByID(dbc, f.ID)
	if err != nil {
		t.Fatalf("get feedback: %v", err)
	}
	if survivor == nil {
		t.Fatal("member must survive cluster deletion")
	}
	if survivor.ClusterID != nil {
		t.Fatal("member should be unclustered after deletion")
	}

	if err := repo.DeleteWithUnlink(dbc, c.ID); !errors.Is(err, errorsx.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

package postgresql

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "jobs_one_active_per_entity"}

	if !isUniqueViolation(unique) {
		t.Fatalf("expected 23505 to be a unique violation")
	}
	if !isUniqueViolation(fmt.Errorf("inserting job: %w", unique)) {
		t.Fatalf("expected wrapped 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign-key violation must not count")
	}
	if isUniqueViolation(errors.New("connection reset")) {
		t.Fatalf("plain error must not count")
	}
}

func TestOpCtx_AppliesDeadline(t *testing.T) {
	ctx, cancel := opCtx(context.Background(), time.Minute)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("expected a deadline")
	}
	if remain := time.Until(deadline); remain > time.Minute || remain <= 0 {
		t.Fatalf("deadline %v out of range", remain)
	}
}

func TestOpCtx_ZeroTimeoutFallsBackToDefault(t *testing.T) {
	ctx, cancel := opCtx(context.Background(), 0)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("expected the default deadline")
	}
	if remain := time.Until(deadline); remain > defaultQueryTimeout || remain <= 0 {
		t.Fatalf("deadline %v out of range for default %v", remain, defaultQueryTimeout)
	}
}

func TestOpCtx_KeepsTighterParentDeadline(t *testing.T) {
	parent, parentCancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer parentCancel()

	ctx, cancel := opCtx(parent, time.Minute)
	defer cancel()

	deadline, _ := ctx.Deadline()
	if time.Until(deadline) > time.Millisecond {
		t.Fatalf("child deadline must not extend past the parent's")
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindInternal},
		{ErrEmptyBody, KindValidation},
		{fmt.Errorf("wrap: %w", ErrInvalidOutcome), KindValidation},
		{ErrNotParty, KindAuthorization},
		{ErrConversationNotFound, KindNotFound},
		{ErrDuplicatePending, KindConflict},
		{fmt.Errorf("op: %w", context.DeadlineExceeded), KindTransient},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), KindTransient},
		{errors.New("disk on fire"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestKindString(t *testing.T) {
	want := map[Kind]string{
		KindInternal:      "internal",
		KindValidation:    "validation",
		KindAuthorization: "authorization",
		KindNotFound:      "not_found",
		KindConflict:      "conflict",
		KindTransient:     "transient",
	}
	for k, s := range want {
		if k.String() != s {
			t.Fatalf("Kind(%d).String() = %q, want %q", int(k), k.String(), s)
		}
	}
}

func TestDetach_IgnoresParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, done := detach(parent, 0)
	defer done()
	cancel()
	if ctx.Err() != nil {
		t.Fatalf("detached context should survive parent cancel")
	}
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("detached context must carry a deadline")
	}
}

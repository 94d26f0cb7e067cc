package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"tutorly/backend/internal/store"
)

func TestTranslateError(t *testing.T) {
	other := errors.New("boom")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "nil", in: nil, want: nil},
		{name: "no rows", in: sql.ErrNoRows, want: store.ErrNotFound},
		{name: "wrapped no rows", in: fmt.Errorf("scan: %w", sql.ErrNoRows), want: store.ErrNotFound},
		{name: "unique violation", in: &pgconn.PgError{Code: "23505"}, want: store.ErrConflict},
		{name: "foreign key violation", in: &pgconn.PgError{Code: "23503"}, want: store.ErrNotFound},
		{name: "check violation", in: &pgconn.PgError{Code: "23514", ConstraintName: "availability_slots_range"}, want: store.ErrInvalidSlot},
		{name: "store sentinel passes through", in: store.ErrConflict, want: store.ErrConflict},
		{name: "unknown", in: other, want: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.in)
			if !errors.Is(got, tt.want) && got != tt.want {
				t.Fatalf("translateError(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNullString(t *testing.T) {
	if nullString("") != nil {
		t.Fatalf("empty comment must map to NULL")
	}
	if got := nullString("x"); got != "x" {
		t.Fatalf("nullString(x) = %v", got)
	}
}

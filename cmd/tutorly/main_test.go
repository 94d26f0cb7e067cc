package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tutorly/backend/internal/service/reservations"
	"tutorly/backend/internal/store"
)

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"teleport"}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), `unknown command "teleport"`)
	assert.Contains(t, stderr.String(), "watch")
}

func TestRunWithoutCommandPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stderr.String(), "usage: tutorly"))
}

func TestParseWeekdays(t *testing.T) {
	days, err := parseWeekdays("1, 3,7")
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 3, 7}, days)

	_, err = parseWeekdays("0")
	require.Error(t, err)
	_, err = parseWeekdays("mon")
	require.Error(t, err)
}

func TestParseRange(t *testing.T) {
	start, end, err := parseRange("2026-01-12T09:00:00Z", "2026-01-12T10:00:00+01:00")
	require.NoError(t, err)
	assert.True(t, start.Equal(end))

	_, _, err = parseRange("tomorrow", "2026-01-12T10:00:00Z")
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	lost := &reservations.ReservationError{State: reservations.StateLost, Cause: reservations.ErrSlotUnavailable}
	failed := &reservations.ReservationError{State: reservations.StateFailed, Cause: errors.New("insert")}

	assert.Equal(t, "Sorry, that slot was just taken. Please pick another one.", describe(lost))
	assert.Equal(t, "We couldn't complete the booking. Please try again.", describe(failed))
	assert.Equal(t, "slot not found", describe(store.ErrNotFound))
	assert.Equal(t, "tutor_id is required", describe(status.Error(codes.InvalidArgument, "tutor_id is required")))
	assert.Equal(t, "boom", describe(errors.New("boom")))
}

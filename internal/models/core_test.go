package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDatabaseBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "locked database", err: errors.New("database is locked"), want: true},
		{name: "locked table", err: errors.New("database table is locked: visits"), want: true},
		{name: "busy code", err: errors.New("SQLITE_BUSY: cannot commit"), want: true},
		{name: "wrapped", err: fmt.Errorf("failed to create visit: %w", errors.New("database is locked")), want: true},
		{name: "unrelated busy wording", err: errors.New("visitor was busy scrolling"), want: false},
		{name: "missing table", err: errors.New("no such table: basic_page_views"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDatabaseBusy(tc.err))
		})
	}
}

func TestIsMissingTable(t *testing.T) {
	assert.True(t, IsMissingTable(errors.New("no such table: basic_page_views")))
	assert.False(t, IsMissingTable(errors.New("database is locked")))
	assert.False(t, IsMissingTable(nil))
}

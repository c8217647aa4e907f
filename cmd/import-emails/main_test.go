package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchiveAccountID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/exports/Sales 2023.mbox", "archive-sales-2023"},
		{"/data/exports/support.MBOX", "archive-support"},
		{"/data/eml/inbox-backup/", "archive-inbox-backup"},
		{"single.eml", "archive-single"},
		{"/", "archive"},
		{".", "archive"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, archiveAccountID(tt.path))
		})
	}
}

func TestArchiveAccountID_DistinctArchives(t *testing.T) {
	assert.NotEqual(t, archiveAccountID("/exports/2023.mbox"), archiveAccountID("/exports/2024.mbox"))
}

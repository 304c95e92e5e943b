package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want any
	}{
		{"inbox", FolderMsg{Folder: model.FolderInbox}},
		{"  SENT ", FolderMsg{Folder: model.FolderSent}},
		{"page 3", PageMsg{Index: 2}},
		{"p 1", PageMsg{Index: 0}},
		{"refresh", RefreshMsg{}},
		{"compose", ComposeMsg{}},
		{"q", QuitMsg{}},
		{"", CancelMsg{}},
	}

	for _, tt := range tests {
		got, err := Parse(tt.line)
		require.NoError(t, err, "line %q", tt.line)
		assert.Equal(t, tt.want, got, "line %q", tt.line)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, line := range []string{"page", "page 0", "page x", "page 1 2", "archive"} {
		_, err := Parse(line)
		assert.Error(t, err, "line %q", line)
	}
}

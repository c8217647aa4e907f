package emails

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpipe/internal/models"
)

const sampleEML = "From: lead@example.com\r\nTo: me@example.com\r\nSubject: Demo next week?\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n\r\nCould we schedule a demo?\r\n"

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantHeader string
		wantBody   string
	}{
		{"crlf", "Subject: a\r\n\r\nbody\r\n", "Subject: a\r\n\r\n", "body\r\n"},
		{"lf", "Subject: a\n\nbody\n", "Subject: a\n\n", "body\n"},
		{"header only", "Subject: a\r\n", "Subject: a\r\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body := SplitMessage([]byte(tt.data))
			assert.Equal(t, tt.wantHeader, string(header))
			assert.Equal(t, tt.wantBody, string(body))
		})
	}
}

func TestRawFromBytes_Decodes(t *testing.T) {
	email, ok := Decode(RawFromBytes(7, []byte(sampleEML)), "archive", models.FolderInbox)
	require.True(t, ok)

	assert.Equal(t, "7", email.ID)
	assert.Equal(t, "Demo next week?", email.Subject)
	assert.Contains(t, email.From, "lead@example.com")
	assert.Contains(t, email.TextBody, "Could we schedule a demo?")
}

func TestScanMBOX(t *testing.T) {
	mbox := "From lead@example.com Mon Jan  1 00:00:00 2024\n" +
		"Subject: First\n\nHello\n>From the start\n\n" +
		"From other@example.com Mon Jan  1 00:00:01 2024\n" +
		"Subject: Second\n\nBye\n"

	var messages []string
	n, err := ScanMBOX(strings.NewReader(mbox), func(data []byte) error {
		messages = append(messages, string(data))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	require.Len(t, messages, 2)
	assert.Equal(t, "Subject: First\r\n\r\nHello\r\nFrom the start\r\n\r\n", messages[0])
	assert.Equal(t, "Subject: Second\r\n\r\nBye\r\n", messages[1])

	email, ok := Decode(RawFromBytes(2, []byte(messages[1])), "archive", models.FolderInbox)
	require.True(t, ok)
	assert.Equal(t, "Second", email.Subject)
}

func TestScanMBOX_CallbackError(t *testing.T) {
	mbox := "From a\nSubject: 1\n\nx\nFrom b\nSubject: 2\n\ny\n"
	boom := errors.New("stop")

	n, err := ScanMBOX(strings.NewReader(mbox), func([]byte) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestWalkEML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.eml"), []byte(sampleEML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "a.EML"), []byte(sampleEML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	var paths []string
	err := WalkEML(dir, func(path string, data []byte) error {
		rel, _ := filepath.Rel(dir, path)
		paths = append(paths, rel)
		assert.Equal(t, sampleEML, string(data))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"b.eml", filepath.Join("nested", "a.EML")}, paths)
}

func TestWalkEML_MissingDir(t *testing.T) {
	err := WalkEML(filepath.Join(t.TempDir(), "missing"), func(string, []byte) error { return nil })
	assert.Error(t, err)
}

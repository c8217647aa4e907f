package emails

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	imapmail "mailpipe/internal/mail"
)

// maxMessageLine bounds a single mbox line
const maxMessageLine = 10 * 1024 * 1024

// SplitMessage separates an RFC 5322 message at the first blank line. The header
// keeps its terminating blank line.
func SplitMessage(data []byte) (header, body []byte) {
	for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
		if i := bytes.Index(data, sep); i >= 0 {
			return data[:i+len(sep)], data[i+len(sep):]
		}
	}
	return data, nil
}

// RawFromBytes wraps a stored message so it can go through Decode. uid stands in
// for the IMAP UID and becomes the email id.
func RawFromBytes(uid uint32, data []byte) imapmail.RawMessage {
	header, body := SplitMessage(data)
	return imapmail.RawMessage{UID: uid, Header: header, Body: body}
}

// ReadEMLFile reads a single .eml file
func ReadEMLFile(filename string) ([]byte, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read EML file: %w", err)
	}
	return data, nil
}

// WalkEML calls fn for every .eml file under dirPath in lexical order. Unreadable
// files are skipped with a warning.
func WalkEML(dirPath string, fn func(path string, data []byte) error) error {
	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".eml") {
			return nil
		}

		data, err := ReadEMLFile(path)
		if err != nil {
			fmt.Printf("[ARCHIVE] Warning: Failed to read %s: %v\n", path, err)
			return nil
		}
		return fn(path, data)
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}
	return nil
}

// ScanMBOX streams the messages of an mbox archive to fn without loading the
// whole file. ">From " quoting is undone.
func ScanMBOX(r io.Reader, fn func(data []byte) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageLine)

	var (
		current bytes.Buffer
		count   int
	)
	flush := func() error {
		if current.Len() == 0 {
			return nil
		}
		count++
		msg := append([]byte(nil), current.Bytes()...)
		current.Reset()
		return fn(msg)
	}

	for scanner.Scan() {
		line := scanner.Text()

		// each message starts with a "From " separator line
		if strings.HasPrefix(line, "From ") {
			if err := flush(); err != nil {
				return count, fmt.Errorf("message %d: %w", count, err)
			}
			continue
		}
		if strings.HasPrefix(line, ">") && strings.HasPrefix(strings.TrimLeft(line, ">"), "From ") {
			line = line[1:]
		}

		current.WriteString(line)
		current.WriteString("\r\n")
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("error reading MBOX file: %w", err)
	}

	if err := flush(); err != nil {
		return count, fmt.Errorf("message %d: %w", count, err)
	}
	return count, nil
}

// ScanMBOXFile opens filename and streams it through ScanMBOX
func ScanMBOXFile(filename string, fn func(data []byte) error) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to open MBOX file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			fmt.Printf("[ARCHIVE] Warning: Error closing file: %v\n", err)
		}
	}()

	return ScanMBOX(file, fn)
}

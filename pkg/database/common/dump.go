package common

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// validationLines is how many leading lines of a dump are searched for a tool marker
const validationLines = 50

// Output is a dump destination file, gzip-compressed when its path ends in .gz
type Output struct {
	file *os.File
	gz   *gzip.Writer
	w    io.Writer
}

// CreateOutput creates path for writing a dump
func CreateOutput(path string) (*Output, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}

	out := &Output{file: file, w: file}
	if strings.HasSuffix(path, ".gz") {
		out.gz = gzip.NewWriter(file)
		out.w = out.gz
	}
	return out, nil
}

// Write implements io.Writer
func (o *Output) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

// Close flushes compression and closes the file
func (o *Output) Close() error {
	var gzErr error
	if o.gz != nil {
		gzErr = o.gz.Close()
	}
	fileErr := o.file.Close()
	if gzErr != nil {
		return fmt.Errorf("failed to finalize gzip stream: %w", gzErr)
	}
	return fileErr
}

// RunCommand runs cmd with stdout sent to out. The process is killed when ctx
// ends. Stderr is captured and included in the returned error.
func RunCommand(ctx context.Context, cmd *exec.Cmd, out io.Writer) error {
	var stderr bytes.Buffer
	cmd.Stdout = out
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		return ctx.Err()
	case err := <-done:
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return fmt.Errorf("%s failed: %w: %s", cmd.Path, err, msg)
			}
			return fmt.Errorf("%s failed: %w", cmd.Path, err)
		}
		return nil
	}
}

// ValidateDump checks that path is a non-empty dump whose first lines mention
// one of markers (case-insensitive). Paths ending in .gz are decompressed.
func ValidateDump(path string, markers []string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("backup file does not exist: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("backup file is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("backup file is not a valid gzip file: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for lines := 0; lines < validationLines && scanner.Scan(); lines++ {
		line := strings.ToLower(scanner.Text())
		for _, marker := range markers {
			if strings.Contains(line, marker) {
				return nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	return fmt.Errorf("backup file format incorrect: none of %q found in the first %d lines", markers, validationLines)
}

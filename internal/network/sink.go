package network

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/squirrel/internal/report"
)

var ErrInvalidFileName = errors.New("network: invalid file name")

// Sink decides where a received file goes and writes it there.
type Sink interface {
	SavePath(suggested string) (string, error)
	WriteFile(path string, data []byte) error
}

// DirSink saves files under Dir using the sender's base name.
type DirSink struct {
	Dir  string
	Perm os.FileMode
}

// SavePath strips any directory the sender included.
func (s DirSink) SavePath(suggested string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(suggested, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidFileName
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name), nil
}

func (s DirSink) WriteFile(path string, data []byte) error {
	perm := s.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

// SaveTo adapts sink into a receive callback. Failures are reported as
// file errors; done, when set, gets the saved path or the error.
func SaveTo(sink Sink, reports *report.Queue, done func(path string, err error)) func(File) {
	return func(f File) {
		path, err := sink.SavePath(f.Name)
		if err == nil {
			err = sink.WriteFile(path, f.Data)
		}
		if err != nil {
			reports.Report(report.File("save "+f.Name, err))
		}
		if done != nil {
			done(path, err)
		}
	}
}

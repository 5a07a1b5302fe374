package executor

import (
	"fmt"
	"os"
	"time"
)

// runLog writes the human-readable runner.log, one event per line.
type runLog struct {
	f *os.File
}

func newRunLog(path string) (*runLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening runner.log: %w", err)
	}
	return &runLog{f: f}, nil
}

func (l *runLog) write(level, format string, args ...any) {
	fmt.Fprintf(l.f, "%s | %s | %s\n",
		time.Now().UTC().Format("2006-01-02 15:04:05"),
		level,
		fmt.Sprintf(format, args...))
}

func (l *runLog) Info(format string, args ...any)  { l.write("INFO", format, args...) }
func (l *runLog) Error(format string, args ...any) { l.write("ERROR", format, args...) }

func (l *runLog) Close() error { return l.f.Close() }

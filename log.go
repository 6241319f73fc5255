package slotbase

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// SetupLogging points logrus at a text formatter that reports the
// calling file, line and goroutine.  DEBUG=1 in the environment
// turns on debug output.
func SetupLogging() {
	if os.Getenv("DEBUG") == "1" {
		log.SetLevel(log.DebugLevel)
	}
	log.SetReportCaller(true)
	log.SetFormatter(&log.TextFormatter{
		CallerPrettyfier: Caller,
		FieldMap: log.FieldMap{
			log.FieldKeyFile: "caller",
		},
		TimestampFormat: "15:04:05.999999999",
	})
}

// Caller renders a log call site as file:line relative to the
// working directory, tagged with the goroutine it ran on.
func Caller(f *runtime.Frame) (function string, file string) {
	wd, _ := os.Getwd()
	return "", fmt.Sprintf("%s:%d gid %d", strings.TrimPrefix(f.File, wd), f.Line, GetGID())
}

// GetGID parses the current goroutine's id out of its stack header.
func GetGID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}

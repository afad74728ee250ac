package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestInitLoggingJSON(t *testing.T) {
	var buf bytes.Buffer
	InitLogging(LogConfig{Level: "info", Format: "json", Output: &buf})
	defer InitLogging(LogConfig{})

	Infof("pushed %d records", 3)
	Debugf("hidden")

	out := buf.String()
	if !strings.Contains(out, `"message":"pushed 3 records"`) {
		t.Errorf("expected JSON info line, got: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered at info level, got: %s", out)
	}
}

func TestVerboseModeEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	InitLogging(LogConfig{Level: "warn", Format: "json", Output: &buf})
	defer func() {
		SetVerboseMode(false)
		InitLogging(LogConfig{})
	}()

	SetVerboseMode(true)
	Debugf("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("verbose mode should emit debug, got: %s", buf.String())
	}

	buf.Reset()
	SetVerboseMode(false)
	Infof("below warn")
	if strings.Contains(buf.String(), "below warn") {
		t.Errorf("turning verbose off should restore configured level, got: %s", buf.String())
	}
}

func TestComponentTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	InitLogging(LogConfig{Format: "json", Output: &buf})
	defer InitLogging(LogConfig{})

	log := Component("jobs")
	log.Info().Str("job", "movie_sync_work").Msg("enqueued")

	out := buf.String()
	if !strings.Contains(out, `"component":"jobs"`) || !strings.Contains(out, `"job":"movie_sync_work"`) {
		t.Errorf("expected component and job fields, got: %s", out)
	}
}

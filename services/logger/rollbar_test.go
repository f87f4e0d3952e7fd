package logsvc

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

func TestRollbarLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := NewRollbarLogger(log.New(buf, "", 0), &core.Config{Env: "TEST"})
	logger.Enable(false)

	actor := walkthrough.Actor{ID: "u-1", Role: walkthrough.RoleReviewer, Email: "rev@org.test"}
	logger.Error("publishing walkthrough", errors.New("boom"), actor)
	logger.Info("started")

	got := buf.String()
	for _, want := range []string{"ERROR: publishing walkthrough\n", "boom\n", "actor: u-1 (reviewer)\n", "INFO: started\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q is missing %q", got, want)
		}
	}
	if strings.Contains(got, "rev@org.test") {
		t.Errorf("output %q should not include the actor's email", got)
	}
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := RollbarLogger{}
	args := logger.prepare("msg", []interface{}{
		errors.New("boom"),
		walkthrough.Actor{ID: "u-1"},
		walkthrough.Actor{ID: "u-2"},
		map[string]interface{}{"id": "wt-1"},
	})
	if len(args) != 3 {
		t.Fatalf("prepare() returned %d args, want 3 (actors are removed)", len(args))
	}
	if args[0] != "msg" {
		t.Errorf("args[0] = %v, want msg", args[0])
	}
}

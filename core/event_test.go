package core

import (
	"encoding/json"
	"testing"
)

func TestEvent_Constructors(t *testing.T) {
	sess := NewSession("list files", BackendTerminal)
	ev := NewSessionEvent(sess)
	if ev.Kind != EventNewSession || ev.SessionID != sess.ID || ev.Timestamp.IsZero() {
		t.Fatalf("NewSessionEvent did not initialize fields correctly: %+v", ev)
	}
	if ev.Data["task"] != "list files" || ev.Data["backend"] != "terminal" {
		t.Fatalf("NewSessionEvent data malformed: %+v", ev.Data)
	}

	end := EndSessionEvent(sess.ID, "completed")
	if end.Kind != EventEndSession || end.Data["reason"] != "completed" {
		t.Fatalf("EndSessionEvent malformed: %+v", end)
	}

	out := OutputEvent(sess.ID, "hello", OutputStreaming)
	if out.Kind != EventOutput || out.Data["text"] != "hello" || out.Data["mode"] != "streaming" {
		t.Fatalf("OutputEvent malformed: %+v", out)
	}

	start := ToolStartEvent(sess.ID, "run_shell_command", "call-1", `{"command":"ls"}`)
	if start.Kind != EventToolStart || start.Data["tool"] != "run_shell_command" || start.Data["callId"] != "call-1" {
		t.Fatalf("ToolStartEvent malformed: %+v", start)
	}

	done := ToolEndEvent(sess.ID, "run_shell_command", "call-1", true)
	if done.Kind != EventToolEnd || done.Data["failed"] != true {
		t.Fatalf("ToolEndEvent malformed: %+v", done)
	}
}

func TestStatusChangeEvent_ErrorOnlyWhenPresent(t *testing.T) {
	ev := StatusChangeEvent("s1", StatusCompleted, "")
	if _, ok := ev.Data["error"]; ok {
		t.Fatalf("expected no error key for clean transition: %+v", ev.Data)
	}
	ev = StatusChangeEvent("s1", StatusError, "boom")
	if ev.Data["error"] != "boom" || ev.Data["status"] != "error" {
		t.Fatalf("expected error carried in data: %+v", ev.Data)
	}
}

func TestEvent_JSONShape(t *testing.T) {
	data, err := json.Marshal(OutputEvent("s1", "x", OutputComplete))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["kind"] != "output" || decoded["sessionId"] != "s1" {
		t.Fatalf("unexpected wire shape: %v", decoded)
	}
}

func TestEvent_IDUniqueness(t *testing.T) {
	if NewID() == NewID() {
		t.Error("Expected unique IDs")
	}
}

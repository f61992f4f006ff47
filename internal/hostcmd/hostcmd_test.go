package hostcmd

import (
	"errors"
	"reflect"
	"testing"
)

func TestRecordingRunRecordsInvocationsAndOutput(t *testing.T) {
	r := NewRecording()
	r.Outputs["getprop"] = "10.0.3.2"

	out, err := r.Run("getprop", "net.dns1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "10.0.3.2" {
		t.Errorf("Run() output = %q, want %q", out, "10.0.3.2")
	}

	want := []Invocation{{Name: "getprop", Args: []string{"net.dns1"}}}
	if !reflect.DeepEqual(r.Calls, want) {
		t.Errorf("Calls = %+v, want %+v", r.Calls, want)
	}
}

func TestRecordingRunReturnsConfiguredError(t *testing.T) {
	r := NewRecording()
	wantErr := errors.New("boom")
	r.Errors["iptables"] = wantErr

	_, err := r.Run("iptables", "-L")
	if err != wantErr {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
}

func TestRecordingLookPathDefaultsPresent(t *testing.T) {
	r := NewRecording()
	if _, err := r.LookPath("iptables"); err != nil {
		t.Errorf("LookPath defaults to present, got error: %v", err)
	}
}

func TestRecordingLookPathCanBeMarkedAbsent(t *testing.T) {
	r := NewRecording()
	r.Present["getprop"] = false
	if _, err := r.LookPath("getprop"); err == nil {
		t.Error("LookPath should error when Present[name] is false")
	}
}

package task_test

import (
	"errors"
	"testing"

	"cryptq/internal/task"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	records := []task.Record{
		{Path: "/tmp/data.bin", Action: task.ActionEncrypt},
		{Path: "/tmp/with spaces/file.txt", Action: task.ActionDecrypt},
		{Path: "relative/path.dat", Action: task.ActionEncrypt},
	}
	for _, rec := range records {
		payload, err := rec.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v): %v", rec, err)
		}
		decoded, err := task.Decode(payload)
		if err != nil {
			t.Fatalf("Decode(%q): %v", payload, err)
		}
		if decoded != rec {
			t.Fatalf("round trip mismatch: got %+v want %+v", decoded, rec)
		}
	}
}

func TestParseActionAcceptsCaseVariants(t *testing.T) {
	for _, input := range []string{"encrypt", "ENCRYPT", " Encrypt "} {
		action, ok := task.ParseAction(input)
		if !ok || action != task.ActionEncrypt {
			t.Fatalf("ParseAction(%q) = %q, %v", input, action, ok)
		}
	}
	if _, ok := task.ParseAction("compress"); ok {
		t.Fatal("expected unknown action to be rejected")
	}
}

func TestValidateRejectsBadRecords(t *testing.T) {
	cases := []task.Record{
		{Path: "", Action: task.ActionEncrypt},
		{Path: "   ", Action: task.ActionEncrypt},
		{Path: "/tmp/bad\x1fpath", Action: task.ActionDecrypt},
		{Path: "/tmp/ok", Action: task.Action("COMPRESS")},
	}
	for _, rec := range cases {
		if err := rec.Validate(); !errors.Is(err, task.ErrMalformed) {
			t.Fatalf("Validate(%+v) = %v, want ErrMalformed", rec, err)
		}
		if _, err := rec.Encode(); !errors.Is(err, task.ErrMalformed) {
			t.Fatalf("Encode(%+v) = %v, want ErrMalformed", rec, err)
		}
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte(""),
		[]byte("ENCRYPT"),
		[]byte("ENCRYPT\x1f"),
		[]byte("COMPRESS\x1f/tmp/file"),
		[]byte("ENCRYPT\x1f/tmp/file\x1fextra"),
	}
	for _, payload := range payloads {
		if _, err := task.Decode(payload); !errors.Is(err, task.ErrMalformed) {
			t.Fatalf("Decode(%q) = %v, want ErrMalformed", payload, err)
		}
	}
}

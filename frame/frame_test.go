package frame

import (
	"bytes"
	"testing"
)

func TestDumpSendSortsHeaders(t *testing.T) {
	f := NewWithBody(CommandSend, Headers{
		"destination": "DLQ",
		"content-length": "3",
	}, []byte("Hi!"))

	got := Dump(f)
	want := "SEND\ncontent-length:3\ndestination:DLQ\n\nHi!\x00"
	if string(got) != want {
		t.Fatalf("Dump = %q, want %q", got, want)
	}
}

func TestDumpEscapesHeaderValues(t *testing.T) {
	f := New(CommandSubscribe, Headers{
		"id":          "s1",
		"destination": "a:b\nc\\d",
	})
	got := Dump(f)
	if !bytes.Contains(got, []byte(`destination:a\cb\nc\\d`)) {
		t.Fatalf("Dump did not escape header value: %q", got)
	}
}

func TestDumpConnectIsUnescaped(t *testing.T) {
	f := New(CommandConnect, Headers{"login": "a:b"})
	got := Dump(f)
	if !bytes.Contains(got, []byte("login:a:b\n")) {
		t.Fatalf("CONNECT header should not be escaped, got %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	frames := []Frame{
		NewWithBody(CommandSend, Headers{"destination": "DLQ"}, []byte("hello")),
		New(CommandSubscribe, Headers{"id": "1", "destination": "q", "ack": "client"}),
		NewWithBody(CommandMessage, Headers{"subscription": "1", "message-id": "m1", "destination": "q"}, []byte("body")),
	}
	for _, f := range frames {
		dumped := Dump(f)
		p := NewParser()
		got, err := p.Feed(dumped)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 frame, got %d", len(got))
		}
		redumped := Dump(got[0])
		if !bytes.Equal(dumped, redumped) {
			t.Fatalf("round trip mismatch:\n  got  %q\n  want %q", redumped, dumped)
		}
	}
}

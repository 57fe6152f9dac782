package cache

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecode_Compressed(t *testing.T) {
	stored := time.Unix(1700000000, 42)
	in := &Entry{
		Key:        "http://example.test/app.js",
		StatusCode: 200,
		Headers: []Header{
			{Key: "Content-Type", Value: "application/javascript"},
			{Key: "Etag", Value: `"abc"`},
		},
		Body:     bytes.Repeat([]byte("console.log(1);"), 200),
		StoredAt: stored,
	}

	plain := EncodeEntry(in, false)
	packed := EncodeEntry(in, true)
	if len(packed) >= len(plain) {
		t.Errorf("Expected compressed encoding to be smaller: %d >= %d", len(packed), len(plain))
	}

	out, err := DecodeEntry(packed)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if out.Key != in.Key || out.StatusCode != 200 || !bytes.Equal(out.Body, in.Body) {
		t.Errorf("Decoded entry differs: %+v", out)
	}
	if !out.StoredAt.Equal(stored) {
		t.Errorf("Expected stored time %v, got %v", stored, out.StoredAt)
	}
	if len(out.Headers) != 2 || out.Headers[1].Value != `"abc"` {
		t.Errorf("Expected headers to survive, got %v", out.Headers)
	}
}

func TestDecodeEntry_Corrupt(t *testing.T) {
	good := EncodeEntry(testEntry("body"), false)

	cases := map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte("XXXX"), good[4:]...),
		"truncated": good[:len(good)-2],
		"trailing":  append(append([]byte(nil), good...), 0),
	}
	for name, data := range cases {
		if _, err := DecodeEntry(data); !errors.Is(err, ErrCorruptEntry) {
			t.Errorf("%s: expected ErrCorruptEntry, got %v", name, err)
		}
	}
}

func FuzzDecodeEntry(f *testing.F) {
	f.Add(EncodeEntry(testEntry("seed"), false))
	f.Add(EncodeEntry(testEntry("seed"), true))
	f.Add([]byte("RCE1"))

	f.Fuzz(func(t *testing.T, data []byte) {
		entry, err := DecodeEntry(data)
		if err != nil {
			return
		}
		// Anything that decodes must encode back to something decodable.
		if _, err := DecodeEntry(EncodeEntry(entry, false)); err != nil {
			t.Errorf("Re-encoded entry failed to decode: %v", err)
		}
	})
}

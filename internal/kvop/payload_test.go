package kvop

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeGet(t *testing.T) {
	payload := EncodeGet([]byte("user:42"))
	op, key, value, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if op != OpGet {
		t.Fatalf("op = %v, want OpGet", op)
	}
	if !bytes.Equal(key, []byte("user:42")) {
		t.Fatalf("key = %q", key)
	}
	if len(value) != 0 {
		t.Fatalf("value = %q, want empty", value)
	}
}

func TestEncodeDecodePut(t *testing.T) {
	payload := EncodePut([]byte("user:42"), []byte("payload-bytes"))
	op, key, value, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if op != OpPut {
		t.Fatalf("op = %v, want OpPut", op)
	}
	if !bytes.Equal(key, []byte("user:42")) {
		t.Fatalf("key = %q", key)
	}
	if !bytes.Equal(value, []byte("payload-bytes")) {
		t.Fatalf("value = %q", value)
	}
}

func TestEncodeDecodeDelete(t *testing.T) {
	payload := EncodeDelete([]byte("user:42"))
	op, key, _, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if op != OpDelete {
		t.Fatalf("op = %v, want OpDelete", op)
	}
	if !bytes.Equal(key, []byte("user:42")) {
		t.Fatalf("key = %q", key)
	}
}

func TestDecodeRejectsShortPayload(t *testing.T) {
	if _, _, _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short payload")
	}
}

func TestDecodeRejectsTruncatedKey(t *testing.T) {
	payload := EncodeGet([]byte("abc"))
	payload = payload[:len(payload)-1] // truncate the key
	if _, _, _, err := Decode(payload); err == nil {
		t.Fatal("expected error for truncated key")
	}
}

func TestDecodeRejectsUnknownOp(t *testing.T) {
	payload := EncodeGet([]byte("abc"))
	payload[0] = 99
	if _, _, _, err := Decode(payload); err == nil {
		t.Fatal("expected error for unknown op")
	}
}

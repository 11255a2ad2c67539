package base64

import (
	"bytes"
	stdbase64 "encoding/base64"
	"math/rand"
	"strings"
	"testing"

	"github.com/danmuck/squirrel/internal/testutil/testlog"
)

func TestRoundTripAllLengths(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(7))
	for n := 0; n <= 300; n++ {
		src := make([]byte, n)
		rng.Read(src)
		enc := Encode(src)
		if strings.ContainsRune(enc, '=') {
			t.Fatalf("len %d: padded output %q", n, enc)
		}
		if len(enc) != EncodedLen(n) {
			t.Fatalf("len %d: encoded length %d want %d", n, len(enc), EncodedLen(n))
		}
		if got := Decode(enc); !bytes.Equal(got, src) {
			t.Fatalf("len %d: round trip mismatch", n)
		}
	}
}

func TestMatchesStandardUnpaddedAlphabet(t *testing.T) {
	testlog.Start(t)
	for _, in := range []string{"", "f", "fo", "foo", "foob", "fooba", "foobar", "\xff\xfe\xfd"} {
		want := stdbase64.RawStdEncoding.EncodeToString([]byte(in))
		if got := Encode([]byte(in)); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}

func TestDecodeIgnoresPadding(t *testing.T) {
	testlog.Start(t)
	if got := string(Decode("Zm9vYg==")); got != "foob" {
		t.Fatalf("padded decode: got %q", got)
	}
	if got := string(Decode("Zm8=")); got != "fo" {
		t.Fatalf("padded decode: got %q", got)
	}
}

func TestDecodeDropsSingleLeftoverSymbol(t *testing.T) {
	testlog.Start(t)
	if got := string(Decode("Zm9vY")); got != "foo" {
		t.Fatalf("got %q want %q", got, "foo")
	}
	if got := Decode("Z"); len(got) != 0 {
		t.Fatalf("single symbol: got %v", got)
	}
}

func TestDecodeMapsForeignSymbolsToZero(t *testing.T) {
	testlog.Start(t)
	// '!' and '*' decode as 'A'.
	if got, want := Decode("!!!!"), Decode("AAAA"); !bytes.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if got, want := Decode("Zm*v"), Decode("ZmAv"); !bytes.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

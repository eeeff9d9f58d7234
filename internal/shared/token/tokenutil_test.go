package token

import (
	"strings"
	"testing"
)

func TestCountTokens(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Fatalf("empty text counted %d", got)
	}
	short := CountTokens("hello")
	long := CountTokens(strings.Repeat("hello world ", 50))
	if short <= 0 || long <= short {
		t.Fatalf("counts not monotonic: short=%d long=%d", short, long)
	}
}

func TestEstimateFast(t *testing.T) {
	if got := EstimateFast(""); got != 0 {
		t.Fatalf("empty estimate %d", got)
	}
	if got := EstimateFast("ab"); got != 1 {
		t.Fatalf("tiny text estimate %d", got)
	}
	// CJK runs roughly one token per rune, far denser than latin.
	latin := EstimateFast(strings.Repeat("word ", 20))
	cjk := EstimateFast(strings.Repeat("任務管理助理", 20))
	if cjk <= latin {
		t.Fatalf("CJK estimate %d not denser than latin %d", cjk, latin)
	}
}

func TestTruncateToTokens(t *testing.T) {
	short := "keep me intact"
	if got := TruncateToTokens(short, 100); got != short {
		t.Fatalf("short text modified: %q", got)
	}

	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 200)
	got := TruncateToTokens(long, 50)
	if len(got) >= len(long) {
		t.Fatal("long text not truncated")
	}
	if !strings.HasSuffix(got, "...[truncated]") {
		t.Fatalf("missing truncation marker: %q", got[len(got)-30:])
	}

	if got := TruncateToTokens(long, 0); got != "" {
		t.Fatalf("zero budget returned %q", got)
	}
}

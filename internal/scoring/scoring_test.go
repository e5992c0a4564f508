package scoring

import (
	"strings"
	"testing"
)

func TestScoreDeterministic(t *testing.T) {
	reply := "Here is the fix:\n\n```go\nreturn nil\n```"
	if Score(reply) != Score(reply) {
		t.Fatalf("score not deterministic")
	}
}

func TestScoreBands(t *testing.T) {
	if got := Score(""); got != 0 {
		t.Fatalf("empty reply should score 0, got %d", got)
	}
	if got := Score("   \n  "); got != 0 {
		t.Fatalf("whitespace reply should score 0, got %d", got)
	}

	short := Score("ok")
	long := Score(strings.Repeat("a detailed explanation. ", 50))
	if short >= long {
		t.Fatalf("expected longer reply to outscore short one: %d vs %d", short, long)
	}

	withCode := Score("fix:\n```go\nreturn nil\n```")
	withoutCode := Score("fix: return nil")
	if withCode <= withoutCode {
		t.Fatalf("expected code block to raise score: %d vs %d", withCode, withoutCode)
	}
}

func TestScoreBounded(t *testing.T) {
	reply := strings.Repeat("line.\n- item\n```code```\n1. step\n", 100)
	if got := Score(reply); got < 0 || got > 100 {
		t.Fatalf("score out of range: %d", got)
	}
}

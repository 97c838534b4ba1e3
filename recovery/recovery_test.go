package recovery

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStrictStrategyFails(t *testing.T) {
	s := NewStrictStrategy()
	if got := s.OnError(context.Background(), errors.New("boom"), Location{}); got != ActionFail {
		t.Fatalf("expected fail, got %v", got)
	}
	if Tolerates(context.Background(), s, errors.New("boom"), Location{}) {
		t.Fatalf("strict strategy must not tolerate errors")
	}
}

func TestLenientStrategyRecords(t *testing.T) {
	s := NewLenientStrategy()
	ok := Tolerates(context.Background(), s, errors.New("bad header"), Location{ObjectNum: 7, Component: "parser"})
	if !ok {
		t.Fatalf("lenient strategy should tolerate errors")
	}
	s.OnError(context.Background(), errors.New("bad xref"), Location{ByteOffset: 42, Component: "xref"})

	errs := s.Recorded()
	if len(errs) != 2 {
		t.Fatalf("expected 2 recorded errors, got %d", len(errs))
	}
	if !strings.Contains(errs[0].Error(), "object 7 0") {
		t.Errorf("unexpected message %q", errs[0])
	}
	if !strings.Contains(errs[1].Error(), "offset 42") {
		t.Errorf("unexpected message %q", errs[1])
	}
}

func TestNilStrategyDoesNotTolerate(t *testing.T) {
	if Tolerates(context.Background(), nil, errors.New("x"), Location{}) {
		t.Fatalf("nil strategy must not tolerate errors")
	}
}

package probe

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestRegistry_RegisterAndBuild(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register("uptime", func(params map[string]string) (Probe, error) {
		return NewFunc("uptime", func(context.Context) (string, error) {
			return "up " + params["unit"], nil
		}), nil
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	p, err := reg.Build(Spec{Kind: "uptime", Params: map[string]string{"unit": "days"}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	got, _ := p.Call(context.Background())
	if got != "up days" {
		t.Errorf("Call() = %q, want %q", got, "up days")
	}
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry()
	factory := func(map[string]string) (Probe, error) { return nil, nil }

	if err := reg.Register("", factory); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("empty kind error = %v, want ErrInvalidKind", err)
	}
	if err := reg.Register("x", nil); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("nil factory error = %v, want ErrInvalidKind", err)
	}
	_ = reg.Register("x", factory)
	if err := reg.Register("x", factory); !errors.Is(err, ErrDuplicateKind) {
		t.Errorf("duplicate error = %v, want ErrDuplicateKind", err)
	}
	if _, err := reg.Build(Spec{Kind: "missing"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind error = %v, want ErrUnknownKind", err)
	}
	if _, err := reg.Build(Spec{}); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("empty spec error = %v, want ErrInvalidKind", err)
	}
}

func TestDefaultRegistry_Kinds(t *testing.T) {
	want := []string{KindNetworkInterfaces}
	if got := DefaultRegistry.Kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("Kinds() = %v, want %v", got, want)
	}
	if !DefaultRegistry.Has(KindNetworkInterfaces) {
		t.Error("Has(network-interfaces) = false")
	}
}

func TestSpec_CloneIsDeep(t *testing.T) {
	s := Spec{Kind: "k", Params: map[string]string{"a": "1"}}
	c := s.Clone()
	c.Params["a"] = "2"
	if s.Params["a"] != "1" {
		t.Error("Clone() shares the params map")
	}
}

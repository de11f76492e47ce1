package codec

import "testing"

type sample struct {
	Name string
	N    int
}

func TestJSONRoundTrip(t *testing.T) {
	c := Get(TypeJSON)
	data, err := c.Marshal(sample{Name: "a", N: 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out sample
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != (sample{Name: "a", N: 1}) {
		t.Fatalf("got %+v", out)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	c := Get(TypeBinary)
	data, err := c.Marshal(sample{Name: "b", N: 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out sample
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != (sample{Name: "b", N: 2}) {
		t.Fatalf("got %+v", out)
	}
}

func TestGetDefaultsToBinary(t *testing.T) {
	if Get(Type(99)).Type() != TypeBinary {
		t.Fatal("expected unrecognized type to default to Binary")
	}
}

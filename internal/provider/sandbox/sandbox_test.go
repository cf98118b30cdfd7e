package sandbox

import "testing"

func TestRun_DefinesCircuit(t *testing.T) {
	result, err := Run(`circuit = {"qubits": 2, "gates": ["h", "cx"]}`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c, err := result.CircuitSymbol()
	if err != nil {
		t.Fatalf("CircuitSymbol: %v", err)
	}
	m, ok := c.(map[string]any)
	if !ok {
		t.Fatalf("circuit has type %T, want map", c)
	}
	if m["qubits"] != float64(2) {
		t.Errorf("qubits = %v, want 2", m["qubits"])
	}
}

func TestRun_MissingCircuit(t *testing.T) {
	result, err := Run(`theta = pi / 4`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := result.CircuitSymbol(); err == nil {
		t.Fatal("expected error for missing circuit symbol")
	}
}

func TestRun_MathAndBuiltins(t *testing.T) {
	result, err := Run(`
n = len(range(10))
total = sum(range(5))
circuit = {"n": n, "total": total, "theta": sqrt(4.0)}
`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c, _ := result.CircuitSymbol()
	m := c.(map[string]any)
	if m["n"] != float64(10) {
		t.Errorf("n = %v, want 10", m["n"])
	}
	if m["total"] != float64(10) {
		t.Errorf("total = %v, want 10", m["total"])
	}
	if m["theta"] != float64(2) {
		t.Errorf("theta = %v, want 2", m["theta"])
	}
}

func TestRun_RejectsDotAccess(t *testing.T) {
	if _, err := Run(`circuit = os.system("rm -rf /")`); err == nil {
		t.Fatal("expected a lex error for attribute access")
	}
}

func TestRun_RejectsUndefinedName(t *testing.T) {
	if _, err := Run(`circuit = eval("1+1")`); err == nil {
		t.Fatal("expected error calling an unwhitelisted name")
	}
}

func TestRun_RejectsUndefinedVariable(t *testing.T) {
	if _, err := Run(`circuit = undefined_name`); err == nil {
		t.Fatal("expected error referencing an undefined variable")
	}
}

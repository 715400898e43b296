package core

// TestKind identifies a declarative test assertion kind.
type TestKind string

// Test kinds.
const (
	TestUnique         TestKind = "unique"
	TestNotNull        TestKind = "not_null"
	TestRelationships  TestKind = "relationships"
	TestAcceptedValues TestKind = "accepted_values"
	TestExpression     TestKind = "expression"
)

// Valid reports whether k is a known test kind.
func (k TestKind) Valid() bool {
	switch k {
	case TestUnique, TestNotNull, TestRelationships, TestAcceptedValues, TestExpression:
		return true
	}
	return false
}

// TestSpec is a declarative assertion bound to exactly one column of
// exactly one node. It is evaluated only after the node's relation exists.
type TestSpec struct {
	Kind   TestKind
	Model  string
	Column string

	// To names the referenced node for relationships tests. It accepts
	// the same ref()/source() forms as model SQL and is resolved to a
	// relation during compilation.
	To string
	// ToRelation is the resolved relation for relationships tests.
	ToRelation string
	// Field is the referenced column for relationships tests.
	Field string

	// Values is the allowed set for accepted_values tests.
	Values []string

	// Expression is a boolean SQL predicate for expression tests. Rows
	// for which it evaluates false (or null) count as failures.
	Expression string
}

package core

import (
	"fmt"
	"strings"
)

// The error taxonomy separates static failures, which abort a run before
// any execution, from dynamic failures, which are contained to the
// affected subgraph:
//
//	ConfigError  — malformed or conflicting configuration (pre-compile)
//	ParseError   — malformed template or unresolvable compile-time construct
//	CompileError — unresolved reference or dependency cycle
//	RuntimeError — adapter failure while executing one node
//
// Test failures are results, not errors (see TestResult).

// ConfigError reports malformed or conflicting configuration.
type ConfigError struct {
	// File is the configuration file at fault, if known.
	File string
	// Node is the affected node name, if the error is node-scoped.
	Node    string
	Message string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Node != "" && e.File != "":
		return fmt.Sprintf("config error in %s (%s): %s", e.Node, e.File, e.Message)
	case e.Node != "":
		return fmt.Sprintf("config error in %s: %s", e.Node, e.Message)
	case e.File != "":
		return fmt.Sprintf("config error in %s: %s", e.File, e.Message)
	}
	return "config error: " + e.Message
}

// ParseError reports a malformed reference macro or a template construct
// that cannot be resolved at compile time.
type ParseError struct {
	Node    string
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	if loc != "" {
		return fmt.Sprintf("parse error in %s (%s): %s", e.Node, loc, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Node, e.Message)
}

// CompileError reports an unresolved reference or a dependency cycle.
// For cycles, Cycle holds the full path, first node repeated last.
type CompileError struct {
	Node    string
	Message string
	Cycle   []string
}

func (e *CompileError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("compile error: dependency cycle: %s", strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("compile error in %s: %s", e.Node, e.Message)
}

// RuntimeError reports a target adapter failure while executing one node.
// It fails only that node; the scheduler propagates skips downstream.
type RuntimeError struct {
	Node string
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error in %s: %v", e.Node, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

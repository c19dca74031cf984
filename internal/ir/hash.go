package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainTables = "kll/tables/v1"
	DomainTrace  = "kll/trace/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TableHash computes the content hash of a table set.
// Journal sessions are stamped with it so a replay can refuse foreign tables.
//
// Layer lists that are nil hash the same as empty lists: both mean
// present-but-empty once the key exists.
func TableHash(ts *TableSet) (string, error) {
	canonical, err := MarshalTables(ts)
	if err != nil {
		return "", fmt.Errorf("TableHash: %w", err)
	}
	return hashWithDomain(DomainTables, canonical), nil
}

// MarshalTables returns the canonical JSON form of ts, the blob format
// DecodeTables reads back.
func MarshalTables(ts *TableSet) ([]byte, error) {
	canonical, err := MarshalCanonical(Normalize(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tables: %w", err)
	}
	return canonical, nil
}

// TraceHash computes the content hash of an action sequence.
// Seq numbers are part of the hash; two runs match only if they emitted
// the same actions in the same order.
func TraceHash(actions []Action) (string, error) {
	list := make([]any, len(actions))
	for i := range actions {
		list[i] = actions[i]
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("TraceHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}

// MustTableHash is like TableHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTableHash(ts *TableSet) string {
	h, err := TableHash(ts)
	if err != nil {
		panic(err)
	}
	return h
}

// Normalize copies ts with every nil list or map replaced by an empty one,
// since canonical JSON forbids null. ts is not modified.
func Normalize(ts *TableSet) *TableSet {
	out := *ts
	out.Capabilities = orEmpty(ts.Capabilities)
	out.Guides = orEmpty(ts.Guides)

	out.Results = make([]ResultMacro, len(ts.Results))
	for i, r := range ts.Results {
		r.Calls = orEmpty(r.Calls)
		out.Results[i] = r
	}

	out.Triggers = make([]TriggerMacro, len(ts.Triggers))
	for i, m := range ts.Triggers {
		steps := make([]TriggerStep, len(m.Steps))
		for j, st := range m.Steps {
			st.Conditions = orEmpty(st.Conditions)
			steps[j] = st
		}
		m.Steps = steps
		out.Triggers[i] = m
	}

	out.Layers = make([]Layer, len(ts.Layers))
	for i, l := range ts.Layers {
		nl := Layer{Name: l.Name, Default: l.Default, Triggers: make(map[ScanCode][]int, len(l.Triggers))}
		for sc, list := range l.Triggers {
			nl.Triggers[sc] = orEmpty(list)
		}
		out.Layers[i] = nl
	}
	return &out
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

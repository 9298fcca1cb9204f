package domain

import (
	"strings"

	dErrors "cityledger/pkg/domain-errors"
)

// Namespace is the ledger namespace every registry entity lives under.
const Namespace = "org.cityledger"

const maxIDLength = 128

// EntityType names a registry (asset or participant type).
type EntityType string

const (
	TypeProposition   EntityType = "Proposition"
	TypeBusiness      EntityType = "Business"
	TypeMultipassUser EntityType = "MultipassUser"
)

func (t EntityType) valid() bool {
	switch t {
	case TypeProposition, TypeBusiness, TypeMultipassUser:
		return true
	}
	return false
}

// PropositionID identifies a Proposition asset. Allocated by the ledger, never reassigned.
type PropositionID string

// BusinessID identifies a Business participant.
type BusinessID string

// MultipassUserID identifies a MultipassUser participant.
type MultipassUserID string

func (id PropositionID) String() string   { return string(id) }
func (id BusinessID) String() string      { return string(id) }
func (id MultipassUserID) String() string { return string(id) }

func (id PropositionID) IsNil() bool   { return id == "" }
func (id BusinessID) IsNil() bool      { return id == "" }
func (id MultipassUserID) IsNil() bool { return id == "" }

// ParsePropositionID validates an identifier received at a trust boundary.
func ParsePropositionID(s string) (PropositionID, error) {
	v, err := parseID(s, "proposition ID")
	return PropositionID(v), err
}

// ParseBusinessID validates an identifier received at a trust boundary.
func ParseBusinessID(s string) (BusinessID, error) {
	v, err := parseID(s, "business ID")
	return BusinessID(v), err
}

// ParseMultipassUserID validates an identifier received at a trust boundary.
func ParseMultipassUserID(s string) (MultipassUserID, error) {
	v, err := parseID(s, "multipass user ID")
	return MultipassUserID(v), err
}

// parseID accepts printable identifiers made of letters, digits and ._:@-.
func parseID(s, label string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" required")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" too long")
	}
	for _, r := range s {
		if !isIDRune(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
		}
	}
	return s, nil
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("._:@-", r):
		return true
	}
	return false
}

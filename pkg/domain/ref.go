package domain

import (
	"strings"

	dErrors "cityledger/pkg/domain-errors"
)

const refScheme = "resource:"

// Ref is a relationship to a registry entity by identifier. Entities reference
// each other only through Refs so no record embeds a live object graph.
type Ref struct {
	Namespace string
	Type      EntityType
	ID        string
}

// NewRef builds a reference in the ledger namespace.
func NewRef(t EntityType, id string) Ref {
	return Ref{Namespace: Namespace, Type: t, ID: id}
}

func BusinessRef(id BusinessID) Ref           { return NewRef(TypeBusiness, string(id)) }
func MultipassUserRef(id MultipassUserID) Ref { return NewRef(TypeMultipassUser, string(id)) }
func PropositionRef(id PropositionID) Ref     { return NewRef(TypeProposition, string(id)) }

// SameEntity reports whether both refs name the same record. Namespace is
// ignored since every ref inside the ledger shares one.
func (r Ref) SameEntity(o Ref) bool {
	return r.Type == o.Type && r.ID == o.ID
}

func (r Ref) IsZero() bool {
	return r.ID == ""
}

// String renders the reference as resource:<namespace>.<Type>#<id>.
func (r Ref) String() string {
	if r.IsZero() {
		return ""
	}
	return refScheme + r.Namespace + "." + string(r.Type) + "#" + r.ID
}

// ParseRef accepts either the full resource URI or a bare identifier, which is
// then qualified with want. A URI naming a different type is rejected.
func ParseRef(s string, want EntityType) (Ref, error) {
	if !strings.HasPrefix(s, refScheme) {
		id, err := parseID(s, string(want)+" reference")
		if err != nil {
			return Ref{}, err
		}
		return NewRef(want, id), nil
	}
	ref, err := parseURI(s)
	if err != nil {
		return Ref{}, err
	}
	if ref.Type != want {
		return Ref{}, dErrors.New(dErrors.CodeInvalidInput, "reference must point to a "+string(want))
	}
	return ref, nil
}

func parseURI(s string) (Ref, error) {
	body := strings.TrimPrefix(s, refScheme)
	qualified, id, ok := strings.Cut(body, "#")
	if !ok {
		return Ref{}, dErrors.New(dErrors.CodeInvalidInput, "reference missing identifier")
	}
	dot := strings.LastIndex(qualified, ".")
	if dot <= 0 {
		return Ref{}, dErrors.New(dErrors.CodeInvalidInput, "reference missing type")
	}
	ns, typ := qualified[:dot], EntityType(qualified[dot+1:])
	if ns != Namespace {
		return Ref{}, dErrors.New(dErrors.CodeInvalidInput, "unknown namespace: "+ns)
	}
	if !typ.valid() {
		return Ref{}, dErrors.New(dErrors.CodeInvalidInput, "unknown entity type: "+string(typ))
	}
	id, err := parseID(id, string(typ)+" reference")
	if err != nil {
		return Ref{}, err
	}
	return Ref{Namespace: ns, Type: typ, ID: id}, nil
}

// MarshalText encodes the reference as its resource URI.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a resource URI. Bare identifiers are not accepted here
// because the target type cannot be inferred.
func (r *Ref) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*r = Ref{}
		return nil
	}
	ref, err := parseURI(string(b))
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

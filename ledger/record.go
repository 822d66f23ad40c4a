package ledger

import (
	"bytes"
	"encoding/json"
)

// Kind names an instrument. It tags records and commands on the wire.
type Kind string

const (
	KindCommercialPaper Kind = "commercial-paper"
	KindIOU             Kind = "iou"
	KindCash            Kind = "cash"
	KindAgreement       Kind = "agreement"
)

// Record is an immutable ledger state. Records are values: changing one
// means producing a new record in a new transaction.
type Record interface {
	Kind() Kind
	// Participants must consent to any transaction touching the record.
	Participants() []Party
	// GroupKey identifies the instrument ignoring its owner, so the input
	// and output of a move land in the same group.
	GroupKey() string
}

// Ownable records have exactly one owner at a time.
type Ownable interface {
	Record
	OwnedBy() Party
}

// Deref returns r as a value record. Records built by pointer and records
// decoded from the wire then look the same to type switches.
func Deref(r Record) Record {
	switch v := r.(type) {
	case *CommercialPaper:
		if v != nil {
			return *v
		}
	case *IOU:
		if v != nil {
			return *v
		}
	case *Cash:
		if v != nil {
			return *v
		}
	case *Agreement:
		if v != nil {
			return *v
		}
	}
	return r
}

// Equal compares records structurally.
func Equal(a, b Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind() != b.Kind() {
		return false
	}
	ea, err := json.Marshal(a)
	if err != nil {
		return false
	}
	eb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

func groupKey(kind Kind, v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic("ledger: encode group key: " + err.Error())
	}
	return string(kind) + "|" + string(b)
}

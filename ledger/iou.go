package ledger

// IOU records that Borrower owes Lender Value.
type IOU struct {
	Lender   Party `json:"lender"`
	Borrower Party `json:"borrower"`
	Value    int64 `json:"value"`
}

func (IOU) Kind() Kind { return KindIOU }

func (i IOU) Participants() []Party { return []Party{i.Lender, i.Borrower} }

func (i IOU) GroupKey() string { return groupKey(KindIOU, i) }

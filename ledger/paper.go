package ledger

import "time"

// CommercialPaper is a promise by the issuer to pay the owner FaceValue at
// MaturityDate.
type CommercialPaper struct {
	Issuance     PartyRef  `json:"issuance"`
	Owner        Party     `json:"owner"`
	FaceValue    Amount    `json:"face_value"`
	MaturityDate time.Time `json:"maturity_date"`
}

func NewCommercialPaper(issuance PartyRef, owner Party, face Amount, maturity time.Time) CommercialPaper {
	return CommercialPaper{
		Issuance:     issuance,
		Owner:        owner,
		FaceValue:    face,
		MaturityDate: maturity.UTC(),
	}
}

func (CommercialPaper) Kind() Kind { return KindCommercialPaper }

func (cp CommercialPaper) Participants() []Party { return []Party{cp.Owner} }

func (cp CommercialPaper) OwnedBy() Party { return cp.Owner }

func (cp CommercialPaper) GroupKey() string {
	cp.Owner = Party{}
	return groupKey(KindCommercialPaper, cp)
}

// WithNewOwner returns the move command and the paper as it will look
// after the move. cp itself is untouched.
func (cp CommercialPaper) WithNewOwner(owner Party) (Command, CommercialPaper) {
	cmd := NewCommand(KindCommercialPaper, VerbMove, cp.Owner.Key)
	cp.Owner = owner
	return cmd, cp
}

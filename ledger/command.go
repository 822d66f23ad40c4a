package ledger

// Verb is a command variant. Each instrument recognises its own closed set.
type Verb string

const (
	VerbIssue  Verb = "issue"
	VerbMove   Verb = "move"
	VerbRedeem Verb = "redeem"
	VerbCreate Verb = "create"
	VerbExit   Verb = "exit"
)

// Command declares the intent of a transaction for one instrument and the
// keys that must sign it.
type Command struct {
	Kind    Kind  `json:"kind"`
	Verb    Verb  `json:"verb"`
	Signers []Key `json:"signers"`
}

func NewCommand(kind Kind, verb Verb, signers ...Key) Command {
	return Command{Kind: kind, Verb: verb, Signers: signers}
}

func (c Command) SignedBy(k Key) bool {
	for _, s := range c.Signers {
		if s == k {
			return true
		}
	}
	return false
}

func PaperIssue(signers ...Key) Command  { return NewCommand(KindCommercialPaper, VerbIssue, signers...) }
func PaperMove(signers ...Key) Command   { return NewCommand(KindCommercialPaper, VerbMove, signers...) }
func PaperRedeem(signers ...Key) Command { return NewCommand(KindCommercialPaper, VerbRedeem, signers...) }
func IOUCreate(signers ...Key) Command   { return NewCommand(KindIOU, VerbCreate, signers...) }
func CashIssue(signers ...Key) Command   { return NewCommand(KindCash, VerbIssue, signers...) }
func CashMove(signers ...Key) Command    { return NewCommand(KindCash, VerbMove, signers...) }
func CashExit(signers ...Key) Command    { return NewCommand(KindCash, VerbExit, signers...) }
func AgreementCreate(signers ...Key) Command {
	return NewCommand(KindAgreement, VerbCreate, signers...)
}
func AgreementMove(signers ...Key) Command { return NewCommand(KindAgreement, VerbMove, signers...) }

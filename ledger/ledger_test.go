package ledger

import (
	"errors"
	"testing"
	"time"
)

var maturity = time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)

func testParties() (Keypair, Party, Keypair, Party, Party) {
	megaKeys := KeypairFromSeed("MegaCorp")
	miniKeys := KeypairFromSeed("MiniCorp")
	notary := KeypairFromSeed("Notary").Party("Notary")
	return megaKeys, megaKeys.Party("MegaCorp"), miniKeys, miniKeys.Party("MiniCorp"), notary
}

func TestRoundTripPreservesID(t *testing.T) {
	_, mega, _, mini, notary := testParties()
	issued := GeneratePaperIssue(notary, mega.Ref(123), Dollars(1000), maturity).
		SetTimeWindow(time.Time{}, maturity.Add(-24*time.Hour)).
		Transaction()

	b := NewBuilder(notary)
	if err := GeneratePaperMove(b, issued.OutRef(0), mini); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	tx := b.Transaction()

	payload, err := Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := Unmarshal(payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID() != tx.ID() {
		t.Fatalf("expected same id, got %s vs %s", decoded.ID(), tx.ID())
	}
	if !Equal(decoded.Inputs[0].State, tx.Inputs[0].State) {
		t.Fatalf("expected input record to survive the round trip")
	}
	if decoded.Inputs[0].Ref != issued.OutRef(0).Ref {
		t.Fatalf("unexpected input ref %s", decoded.Inputs[0].Ref)
	}
}

func TestEmptyTransactionRoundTrip(t *testing.T) {
	tx := &Transaction{Nonce: "n"}
	payload, err := Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := Unmarshal(payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID() != tx.ID() {
		t.Fatalf("expected nil and empty collections to hash the same")
	}
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"nonce":"x","outputs":[{"kind":"bond","data":{}}]}`))
	if err == nil {
		t.Fatalf("expected unknown kind to fail")
	}
}

func TestNonceMakesIDsDistinct(t *testing.T) {
	_, lender, _, borrower, notary := testParties()
	a := GenerateIOUCreate(notary, lender, borrower, 50).Transaction()
	b := GenerateIOUCreate(notary, lender, borrower, 50).Transaction()
	if a.ID() == b.ID() {
		t.Fatalf("expected retried proposals to get fresh ids")
	}
}

func TestBuilderSnapshotIsIndependent(t *testing.T) {
	_, lender, _, borrower, notary := testParties()
	b := GenerateIOUCreate(notary, lender, borrower, 50)
	first := b.Transaction()
	b.AddOutput(IOU{Lender: lender, Borrower: borrower, Value: 1})
	if len(first.Outputs) != 1 {
		t.Fatalf("expected snapshot to keep 1 output, got %d", len(first.Outputs))
	}
}

func TestWithNewOwnerLeavesOriginal(t *testing.T) {
	_, mega, _, mini, _ := testParties()
	cp := NewCommercialPaper(mega.Ref(1), mega, Dollars(1000), maturity)
	cmd, moved := cp.WithNewOwner(mini)
	if cp.Owner != mega {
		t.Fatalf("expected original owner to stay %s", mega)
	}
	if moved.Owner != mini || cmd.Verb != VerbMove || !cmd.SignedBy(mega.Key) {
		t.Fatalf("unexpected move %+v %+v", cmd, moved)
	}
	if cp.GroupKey() != moved.GroupKey() {
		t.Fatalf("expected owner change to keep the group key")
	}
	if Equal(cp, moved) {
		t.Fatalf("expected records with different owners to differ")
	}
}

func TestParticipants(t *testing.T) {
	_, lender, _, borrower, _ := testParties()
	iou := IOU{Lender: lender, Borrower: borrower, Value: 10}
	got := Participants(iou, iou)
	if len(got) != 2 || got[0] != lender || got[1] != borrower {
		t.Fatalf("unexpected participants %v", got)
	}
}

func TestSignatures(t *testing.T) {
	lenderKeys, lender, borrowerKeys, borrower, notary := testParties()
	tx := GenerateIOUCreate(notary, lender, borrower, 50).Transaction()
	id := tx.ID()

	sig, err := lenderKeys.Sign(id)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	stx := &SignedTransaction{Tx: tx, Sigs: []Signature{sig}}
	if err := stx.VerifySignatures(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := stx.VerifyRequiredSignatures(); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected missing signature, got %v", err)
	}

	other, _ := borrowerKeys.Sign(id)
	full := stx.WithSignatures(other, other)
	if len(full.Sigs) != 2 || len(stx.Sigs) != 1 {
		t.Fatalf("expected copy with 2 sigs, got %d (original %d)", len(full.Sigs), len(stx.Sigs))
	}
	if err := full.VerifyRequiredSignatures(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	forged := Signature{By: borrower.Key, Bytes: sig.Bytes}
	bad := stx.WithSignatures(forged)
	if err := bad.VerifySignatures(); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	payload, err := MarshalSigned(full)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := UnmarshalSigned(payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID() != id || back.VerifyRequiredSignatures() != nil {
		t.Fatalf("expected signed transaction to survive the round trip")
	}
}

func TestParseStateRef(t *testing.T) {
	ref := StateRef{TxID: "sha256:abcd", Index: 3}
	got, err := ParseStateRef(ref.String())
	if err != nil || got != ref {
		t.Fatalf("expected %v, got %v (%v)", ref, got, err)
	}
	if _, err := ParseStateRef("nope"); err == nil {
		t.Fatalf("expected error for ref without index")
	}
}

func TestAmount(t *testing.T) {
	sum, err := Dollars(10).Plus(NewAmount(5, "USD"))
	if err != nil || sum.Quantity != 1005 {
		t.Fatalf("unexpected sum %v (%v)", sum, err)
	}
	if _, err := Dollars(1).Plus(NewAmount(1, "GBP")); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
	if got := NewAmount(-150, "USD").String(); got != "-1.50 USD" {
		t.Fatalf("unexpected string %q", got)
	}
}

func TestTimeWindowContains(t *testing.T) {
	now := maturity
	w := WithTolerance(now, time.Minute)
	if !w.Contains(now) || w.Contains(now.Add(time.Minute)) || w.Contains(now.Add(-2*time.Minute)) {
		t.Fatalf("unexpected containment for %+v", w)
	}
	var open *TimeWindow
	if !open.Contains(now) {
		t.Fatalf("expected a missing window to contain everything")
	}
}

func TestGenerateCashSpendReturnsChange(t *testing.T) {
	_, mega, _, mini, notary := testParties()
	bank := KeypairFromSeed("Bank").Party("Bank")
	issue := GenerateCashIssue(notary, bank.Ref(1), mini, Dollars(900)).Transaction()

	b := NewBuilder(notary)
	if err := GenerateCashSpend(b, []StateAndRef{issue.OutRef(0)}, mini, mega, Dollars(600)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	tx := b.Transaction()
	if len(tx.Inputs) != 1 || len(tx.Outputs) != 2 {
		t.Fatalf("expected 1 input and 2 outputs, got %d/%d", len(tx.Inputs), len(tx.Outputs))
	}
	if got := SumCashBy(tx.Outputs, mini, "USD"); got.Quantity != Dollars(300).Quantity {
		t.Fatalf("expected 300 change, got %s", got)
	}

	if err := GenerateCashSpend(NewBuilder(notary), []StateAndRef{issue.OutRef(0)}, mini, mega, Dollars(1000)); err == nil {
		t.Fatalf("expected insufficient balance")
	}
}

func TestSumCashByCountsPointers(t *testing.T) {
	_, mega, _, mini, _ := testParties()
	ten := Cash{Issuer: mega.Ref(1), Owner: mini, Amount: Dollars(10)}
	records := []Record{ten, &ten, Cash{Issuer: mega.Ref(1), Owner: mega, Amount: Dollars(7)}}
	if got := SumCashBy(records, mini, "USD"); got.Quantity != Dollars(20).Quantity {
		t.Fatalf("expected 20 owned by mini, got %s", got)
	}
	if v, ok := Deref(&ten).(Cash); !ok || !Equal(v, ten) {
		t.Fatalf("expected the pointer to dereference to its value")
	}
}

func TestSetTimeWindowOpenSides(t *testing.T) {
	_, _, _, _, notary := testParties()
	from := NewBuilder(notary).SetTimeWindow(maturity, time.Time{}).Transaction().TimeWindow
	if from.From == nil || from.Until != nil || !from.Contains(maturity.Add(1000*time.Hour)) {
		t.Fatalf("unexpected window %+v", from)
	}
	until := NewBuilder(notary).SetTimeWindow(time.Time{}, maturity).Transaction().TimeWindow
	if until.From != nil || until.Until == nil || until.Contains(maturity) {
		t.Fatalf("unexpected window %+v", until)
	}
}

package events

import (
	"math/big"
	"testing"

	"metanode/crypto"
)

func TestTokenSupplyEvent(t *testing.T) {
	raw := make([]byte, 20)
	raw[19] = 7
	to := crypto.NewAddress(crypto.MNDPrefix, raw)
	evt := TokenSupply{
		Height: 4,
		Token:  " meta ",
		To:     to,
		Delta:  big.NewInt(250),
		Total:  big.NewInt(1250),
	}.Event()
	if evt.Type != TypeTokenSupply || evt.Height != 4 {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Attributes["token"] != "META" || evt.Attributes["delta"] != "250" || evt.Attributes["to"] != to.String() {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["reason"] != SupplyReasonMint || evt.Attributes["total"] != "1250" {
		t.Fatalf("unexpected reason or total: %+v", evt.Attributes)
	}
}

func TestBufferFlushAndFanout(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(TokenSupply{Token: "A", Delta: big.NewInt(1)})
	buf.Emit(nil)
	buf.Emit(TokenSupply{Token: "B", Delta: big.NewInt(2)})

	first, second := &Buffer{}, &Buffer{}
	fan := NewFanout(first, nil)
	fan.Add(second)
	buf.Flush(fan)

	if len(buf.Events()) != 0 {
		t.Fatalf("buffer not emptied")
	}
	for _, target := range []*Buffer{first, second} {
		got := target.Events()
		if len(got) != 2 || got[0].(TokenSupply).Token != "A" || got[1].(TokenSupply).Token != "B" {
			t.Fatalf("unexpected forwarded events %+v", got)
		}
	}
}

func TestCommittedCarriesSequence(t *testing.T) {
	inner := TokenSupply{Height: 9, Token: "meta", Delta: big.NewInt(3)}
	committed := Committed{Seq: 41, Inner: inner}
	if committed.EventType() != TypeTokenSupply {
		t.Fatalf("unexpected type %s", committed.EventType())
	}
	evt := committed.Event()
	if evt.Attributes["seq"] != "41" || evt.Height != 9 {
		t.Fatalf("unexpected committed event %+v", evt)
	}
	if _, ok := inner.Event().Attributes["seq"]; ok {
		t.Fatalf("inner event must not be mutated")
	}
	if (Committed{}).Event() != nil {
		t.Fatalf("expected nil event for empty wrapper")
	}
}

package service

import (
	"testing"

	"dialer_backend/internal/dispatch/repository"

	"github.com/google/uuid"
)

func testNumber(number string, dailyCalls int) repository.PhoneNumber {
	return repository.PhoneNumber{ID: uuid.New(), Number: number, DailyCalls: dailyCalls}
}

func TestCallerIDSelector_AreaCodeMatchWins(t *testing.T) {
	local := testNumber("+14155550100", 0)
	remote := testNumber("+12125550100", 0)
	sel := newCallerIDSelector([]repository.PhoneNumber{remote, local})

	picked := sel.pick("+14155550199")
	if picked == nil {
		t.Fatalf("expected a pick")
	}
	if picked.ID != local.ID {
		t.Fatalf("expected area-code match %s, got %s", local.Number, picked.Number)
	}
}

func TestCallerIDSelector_DailyUsePenalized(t *testing.T) {
	fresh := testNumber("+12125550100", 0)
	worn := testNumber("+12125550101", 60)
	sel := newCallerIDSelector([]repository.PhoneNumber{worn, fresh})

	picked := sel.pick("+13105550199")
	if picked == nil || picked.ID != fresh.ID {
		t.Fatalf("expected lightly used number, got %+v", picked)
	}
}

func TestCallerIDSelector_BatchUseSpreadsLoad(t *testing.T) {
	a := testNumber("+12125550100", 0)
	b := testNumber("+12125550101", 0)
	sel := newCallerIDSelector([]repository.PhoneNumber{a, b})

	first := sel.pick("+13105550199")
	if first == nil || first.ID != a.ID {
		t.Fatalf("expected tie to keep stored order")
	}
	sel.markUsed(first.ID)

	second := sel.pick("+13105550199")
	if second == nil || second.ID != b.ID {
		t.Fatalf("expected batch-use penalty to rotate to the second number")
	}
}

func TestCallerIDSelector_AreaCodeBeatsOneBatchUse(t *testing.T) {
	local := testNumber("+14155550100", 0)
	other := testNumber("+12125550101", 0)
	sel := newCallerIDSelector([]repository.PhoneNumber{local, other})

	sel.markUsed(local.ID)
	// 100 + 50 - 20 = 130 still beats 100.
	picked := sel.pick("+14155550199")
	if picked == nil || picked.ID != local.ID {
		t.Fatalf("expected area-code bonus to outweigh one batch use")
	}
}

func TestCallerIDSelector_TieKeepsEarliest(t *testing.T) {
	a := testNumber("+12125550100", 5)
	b := testNumber("+12125550101", 5)
	sel := newCallerIDSelector([]repository.PhoneNumber{a, b})

	for i := 0; i < 3; i++ {
		picked := sel.pick("+13105550199")
		if picked == nil || picked.ID != a.ID {
			t.Fatalf("pick %d: expected deterministic earliest number", i)
		}
	}
}

func TestCallerIDSelector_NoNumbers(t *testing.T) {
	sel := newCallerIDSelector(nil)
	if picked := sel.pick("+14155550199"); picked != nil {
		t.Fatalf("expected nil pick with no numbers, got %+v", picked)
	}
}

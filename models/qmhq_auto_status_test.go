package models

import (
	"testing"
)

func TestResolveQmhqStatusItemRoute(t *testing.T) {
	cases := []struct {
		name string
		in   AutoStatusInput
		want QmhqStatus
	}{
		{"no lines no approvals", AutoStatusInput{}, QmhqStatusItemPending},
		{"no lines means never done", AutoStatusInput{AllLinesExecuted: true}, QmhqStatusItemPending},
		{"approval moves to processing", AutoStatusInput{AnyLineItems: true, AnyApproval: true}, QmhqStatusItemProcessing},
		{"lines without approvals stay pending", AutoStatusInput{AnyLineItems: true}, QmhqStatusItemPending},
		{"all lines executed", AutoStatusInput{AnyLineItems: true, AllLinesExecuted: true, AnyApproval: true}, QmhqStatusItemDone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveQmhqStatus(RouteTypeItem, tc.in); got != tc.want {
				t.Fatalf("ResolveQmhqStatus(item, %+v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestResolveQmhqStatusExpenseRoute(t *testing.T) {
	cases := []struct {
		name    string
		amount  string
		moneyIn string
		anyIn   bool
		want    QmhqStatus
	}{
		{"nothing received", "1000", "0", false, QmhqStatusExpensePending},
		{"partially funded", "1000", "400", true, QmhqStatusExpenseProcessing},
		{"fully funded", "1000", "1000", true, QmhqStatusExpenseDone},
		{"over funded", "1000", "1200", true, QmhqStatusExpenseDone},
		{"zero amount is trivially done", "0", "0", false, QmhqStatusExpenseDone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := AutoStatusInput{
				AmountEusd:       d(tc.amount),
				TotalMoneyInEusd: d(tc.moneyIn),
				AnyMoneyIn:       tc.anyIn,
			}
			if got := ResolveQmhqStatus(RouteTypeExpense, in); got != tc.want {
				t.Fatalf("ResolveQmhqStatus(expense, %+v) = %q, want %q", in, got, tc.want)
			}
		})
	}
}

func TestResolveQmhqStatusPORoute(t *testing.T) {
	cases := []struct {
		name      string
		amount    string
		moneyIn   string
		committed string
		anyOpenPO bool
		want      QmhqStatus
	}{
		{"nothing yet", "1000", "0", "0", false, QmhqStatusPoPending},
		{"open PO processing", "1000", "500", "500", true, QmhqStatusPoProcessing},
		{"funded but uncommitted", "1000", "1000", "400", true, QmhqStatusPoProcessing},
		{"funded and committed", "1000", "1000", "1000", true, QmhqStatusPoDone},
		{"committed beyond funding", "1000", "1000", "1200", true, QmhqStatusPoDone},
		{"underfunded never done", "1000", "400", "400", false, QmhqStatusPoPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := AutoStatusInput{
				AmountEusd:           d(tc.amount),
				TotalMoneyInEusd:     d(tc.moneyIn),
				TotalPoCommittedEusd: d(tc.committed),
				AnyOpenPO:            tc.anyOpenPO,
			}
			if got := ResolveQmhqStatus(RouteTypePO, in); got != tc.want {
				t.Fatalf("ResolveQmhqStatus(po, %+v) = %q, want %q", in, got, tc.want)
			}
		})
	}
}

func TestBudgetSummary(t *testing.T) {
	q := &QMHQ{
		AmountEusd:           d("1000"),
		TotalMoneyInEusd:     d("600"),
		TotalPoCommittedEusd: d("250"),
	}
	b := q.Budget()
	if !b.BalanceInHandEusd.Equal(d("350")) {
		t.Fatalf("BalanceInHandEusd = %s, want 350", b.BalanceInHandEusd)
	}
	if !b.YetToReceiveEusd.Equal(d("400")) {
		t.Fatalf("YetToReceiveEusd = %s, want 400", b.YetToReceiveEusd)
	}

	// committed beyond funding goes negative, it is reported as-is
	q.TotalPoCommittedEusd = d("900")
	if got := q.Budget().BalanceInHandEusd; !got.Equal(d("-300")) {
		t.Fatalf("BalanceInHandEusd = %s, want -300", got)
	}
}

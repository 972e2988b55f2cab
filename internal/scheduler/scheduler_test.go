package scheduler

import (
	"fmt"
	"math"
	"testing"
	"time"
)

var opts = Options{MinSpacing: 2 * time.Hour, LeadTime: time.Hour}

func pending(account string, n int) []Pending {
	out := make([]Pending, n)
	for i := range out {
		out[i] = Pending{PostID: fmt.Sprintf("%s-%02d", account, i), AccountID: account}
	}
	return out
}

func assertNoConflicts(t *testing.T, assignments []Assignment, booked map[string][]time.Time, spacing time.Duration) {
	t.Helper()
	byAccount := make(map[string][]time.Time)
	for acct, slots := range booked {
		byAccount[acct] = append(byAccount[acct], slots...)
	}
	for _, a := range assignments {
		for _, other := range byAccount[a.AccountID] {
			d := a.At.Sub(other)
			if d < 0 {
				d = -d
			}
			if d < spacing {
				t.Fatalf("post %s at %s conflicts with slot %s", a.PostID, a.At, other)
			}
		}
		byAccount[a.AccountID] = append(byAccount[a.AccountID], a.At)
	}
}

func TestFillThreePerWeekTenPosts(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	res := Fill(Request{
		Now:      now,
		Accounts: []Account{{ID: "acct", PostsPerWeek: 3}},
		Posts:    pending("acct", 10),
	}, opts)

	if len(res.Assignments) != 10 || len(res.Skipped) != 0 {
		t.Fatalf("assigned %d skipped %v", len(res.Assignments), res.Skipped)
	}
	assertNoConflicts(t, res.Assignments, nil, 2*time.Hour)

	for i, a := range res.Assignments {
		if want := fmt.Sprintf("acct-%02d", i); a.PostID != want {
			t.Fatalf("assignment %d is %s, want %s (FIFO)", i, a.PostID, want)
		}
		if a.At.Before(now.Add(time.Hour)) {
			t.Fatalf("slot %s inside lead time", a.At)
		}
		if i > 0 {
			gap := a.At.Sub(res.Assignments[i-1].At)
			if gap < 2*24*time.Hour || gap > 3*24*time.Hour {
				t.Fatalf("gap %s between posts %d and %d, want 2-3 days", gap, i-1, i)
			}
		}
	}

	span := res.Assignments[9].At.Sub(res.Assignments[0].At).Hours() / 24
	if avg := span / 9; math.Abs(avg-7.0/3.0) > 0.35 {
		t.Fatalf("average spacing %.2f days, want about 2.33", avg)
	}
}

func TestFillRateConverges(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, perWeek := range []float64{2, 3, 5, 7} {
		t.Run(fmt.Sprint(perWeek), func(t *testing.T) {
			res := Fill(Request{
				Now:      now,
				Accounts: []Account{{ID: "a", PostsPerWeek: perWeek}},
				Posts:    pending("a", 2000),
			}, Options{MinSpacing: 2 * time.Hour, LeadTime: time.Hour, HorizonDays: 364})

			want := perWeek * 52
			if got := float64(len(res.Assignments)); math.Abs(got-want) > 2 {
				t.Fatalf("assigned %v over 52 weeks, want about %v", got, want)
			}
			if len(res.Assignments)+len(res.Skipped) != 2000 {
				t.Fatal("every post must be assigned or reported skipped")
			}
		})
	}
}

func TestFillSkipsConflictsWithoutSpendingBudget(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	booked := map[string][]time.Time{
		"a": {time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)},
	}
	res := Fill(Request{
		Now:      now,
		Accounts: []Account{{ID: "a", PostsPerWeek: 7, BestTimes: []string{"09:00", "12:00"}}},
		Posts:    pending("a", 1),
		Booked:   booked,
	}, opts)
	if len(res.Assignments) != 1 {
		t.Fatalf("assignments = %+v", res.Assignments)
	}
	want := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if !res.Assignments[0].At.Equal(want) {
		t.Fatalf("slot = %s, want %s", res.Assignments[0].At, want)
	}
	assertNoConflicts(t, res.Assignments, booked, 2*time.Hour)
}

func TestFillPastSlotsRollToNextDay(t *testing.T) {
	now := time.Date(2026, 3, 2, 16, 30, 0, 0, time.UTC)
	res := Fill(Request{
		Now:      now,
		Accounts: []Account{{ID: "a", PostsPerWeek: 7}},
		Posts:    pending("a", 1),
	}, opts)
	want := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	if len(res.Assignments) != 1 || !res.Assignments[0].At.Equal(want) {
		t.Fatalf("assignments = %+v, want %s", res.Assignments, want)
	}
}

func TestFillCarriesBudgetButCapsPerDay(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	res := Fill(Request{
		Now:      now,
		Accounts: []Account{{ID: "a", PostsPerWeek: 21, BestTimes: []string{"10:00"}}},
		Posts:    pending("a", 4),
	}, opts)
	if len(res.Assignments) != 4 {
		t.Fatalf("assignments = %+v", res.Assignments)
	}
	days := make(map[string]int)
	for _, a := range res.Assignments {
		days[a.At.Format("2006-01-02")]++
	}
	for day, n := range days {
		if n > 1 {
			t.Fatalf("%d posts on %s with one preferred time", n, day)
		}
	}
}

func TestFillMultipleAccountsIndependent(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	posts := append(pending("a", 3), pending("b", 3)...)
	res := Fill(Request{
		Now: now,
		Accounts: []Account{
			{ID: "a", PostsPerWeek: 7},
			{ID: "b", PostsPerWeek: 7},
		},
		Posts: posts,
	}, opts)
	if len(res.Assignments) != 6 {
		t.Fatalf("assignments = %+v", res.Assignments)
	}
	assertNoConflicts(t, res.Assignments, nil, 2*time.Hour)
	first := map[string]time.Time{}
	for _, a := range res.Assignments {
		if _, ok := first[a.AccountID]; !ok {
			first[a.AccountID] = a.At
		}
	}
	if !first["a"].Equal(first["b"]) {
		t.Fatal("accounts do not share a conflict window")
	}
}

func TestFillUsesAccountTimezone(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)
	res := Fill(Request{
		Now:      now,
		Accounts: []Account{{ID: "a", PostsPerWeek: 7, BestTimes: []string{"09:00"}, Location: chicago}},
		Posts:    pending("a", 1),
	}, opts)
	if len(res.Assignments) != 1 {
		t.Fatalf("assignments = %+v", res.Assignments)
	}
	local := res.Assignments[0].At.In(chicago)
	if local.Hour() != 9 || local.Minute() != 0 {
		t.Fatalf("local slot = %s", local)
	}
	if res.Assignments[0].At.Location() != time.UTC {
		t.Fatal("assignments must be UTC")
	}
}

func TestFillUnknownAccountAndDefaults(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	res := Fill(Request{
		Now:      now,
		Accounts: []Account{{ID: "a", BestTimes: []string{"bogus"}}},
		Posts:    []Pending{{PostID: "p1", AccountID: "missing"}, {PostID: "p2", AccountID: "a"}},
	}, opts)
	if len(res.Skipped) != 1 || res.Skipped[0].PostID != "p1" {
		t.Fatalf("skipped = %+v", res.Skipped)
	}
	if len(res.Assignments) != 1 || res.Assignments[0].At.Hour() != 9 {
		t.Fatalf("default cadence not applied: %+v", res.Assignments)
	}
}

func TestValidTime(t *testing.T) {
	for v, want := range map[string]bool{"09:00": true, "23:59": true, "24:00": false, "9": false, "ab:cd": false} {
		if ValidTime(v) != want {
			t.Fatalf("ValidTime(%q) != %v", v, want)
		}
	}
}

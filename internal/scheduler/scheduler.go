// Package scheduler places unscheduled posts onto each account's weekly cadence.
//
// Every day an account earns postsPerWeek/7 of budget. Whenever the budget reaches a whole
// post, the next post in the account's FIFO queue takes the next free preferred time of that
// day. Slots in the past, inside the lead time, or too close to another booking of the same
// account are skipped without spending budget; budget left when a day runs out of times
// carries over to the next day.
package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPostsPerWeek = 3
	DefaultMinSpacing   = 2 * time.Hour
	DefaultLeadTime     = time.Hour
	DefaultHorizonDays  = 365

	// budget threshold; slightly under 1 so accumulated float error does not drop a post
	budgetThreshold = 0.99
)

var DefaultBestTimes = []string{"09:00", "12:00", "17:00"}

type Account struct {
	ID           string
	PostsPerWeek float64
	BestTimes    []string
	Location     *time.Location
}

// Pending is an unscheduled post waiting for a slot, in FIFO order within its account.
type Pending struct {
	PostID    string
	AccountID string
}

type Request struct {
	Now      time.Time
	Accounts []Account
	Posts    []Pending
	// Booked holds already committed slots per account id.
	Booked map[string][]time.Time
}

type Options struct {
	MinSpacing  time.Duration
	LeadTime    time.Duration
	HorizonDays int
}

func (o Options) withDefaults() Options {
	if o.MinSpacing <= 0 {
		o.MinSpacing = DefaultMinSpacing
	}
	if o.LeadTime < 0 {
		o.LeadTime = 0
	}
	if o.HorizonDays <= 0 || o.HorizonDays > DefaultHorizonDays {
		o.HorizonDays = DefaultHorizonDays
	}
	return o
}

type Assignment struct {
	PostID    string    `json:"post_id"`
	AccountID string    `json:"account_id"`
	At        time.Time `json:"scheduled_at"`
}

type Skipped struct {
	PostID string `json:"post_id"`
	Reason string `json:"reason"`
}

type Result struct {
	Assignments []Assignment `json:"assignments"`
	Skipped     []Skipped    `json:"skipped,omitempty"`
}

type clockTime struct {
	hour, minute int
}

type accountState struct {
	account Account
	times   []clockTime
	rate    float64
	budget  float64
	queue   []string
	taken   []time.Time
}

// Fill computes slots for req.Posts. It is deterministic for a given request.
func Fill(req Request, opts Options) Result {
	opts = opts.withDefaults()
	now := req.Now.UTC()
	earliest := now.Add(opts.LeadTime)

	accounts := make(map[string]Account, len(req.Accounts))
	for _, a := range req.Accounts {
		accounts[a.ID] = a
	}

	var result Result
	states := make(map[string]*accountState)
	var order []string
	for _, p := range req.Posts {
		acct, ok := accounts[p.AccountID]
		if !ok {
			result.Skipped = append(result.Skipped, Skipped{PostID: p.PostID, Reason: fmt.Sprintf("unknown account %q", p.AccountID)})
			continue
		}
		st, ok := states[p.AccountID]
		if !ok {
			st = newAccountState(acct, req.Booked[acct.ID])
			states[p.AccountID] = st
			order = append(order, p.AccountID)
		}
		st.queue = append(st.queue, p.PostID)
	}

	for day := 0; day < opts.HorizonDays; day++ {
		remaining := false
		for _, id := range order {
			st := states[id]
			if len(st.queue) == 0 {
				continue
			}
			remaining = true
			result.Assignments = append(result.Assignments, st.fillDay(now, earliest, day, opts.MinSpacing)...)
		}
		if !remaining {
			break
		}
	}

	for _, id := range order {
		for _, postID := range states[id].queue {
			result.Skipped = append(result.Skipped, Skipped{PostID: postID, Reason: "no free slot within horizon"})
		}
	}
	return result
}

func newAccountState(a Account, booked []time.Time) *accountState {
	if a.Location == nil {
		a.Location = time.UTC
	}
	rate := a.PostsPerWeek
	if rate <= 0 {
		rate = DefaultPostsPerWeek
	}
	times := parseTimes(a.BestTimes)
	if len(times) == 0 {
		times = parseTimes(DefaultBestTimes)
	}
	taken := make([]time.Time, len(booked))
	copy(taken, booked)
	return &accountState{account: a, times: times, rate: rate / 7, taken: taken}
}

func (st *accountState) fillDay(now, earliest time.Time, offset int, spacing time.Duration) []Assignment {
	st.budget += st.rate

	local := now.In(st.account.Location)
	var out []Assignment
	for idx := 0; st.budget >= budgetThreshold && len(st.queue) > 0 && idx < len(st.times); idx++ {
		ct := st.times[idx%len(st.times)]
		slot := time.Date(local.Year(), local.Month(), local.Day()+offset, ct.hour, ct.minute, 0, 0, st.account.Location).UTC()

		if slot.Before(earliest) || st.conflicts(slot, spacing) {
			continue
		}

		postID := st.queue[0]
		st.queue = st.queue[1:]
		st.taken = append(st.taken, slot)
		st.budget--
		out = append(out, Assignment{PostID: postID, AccountID: st.account.ID, At: slot})
	}
	return out
}

func (st *accountState) conflicts(slot time.Time, spacing time.Duration) bool {
	for _, t := range st.taken {
		d := t.Sub(slot)
		if d < 0 {
			d = -d
		}
		if d < spacing {
			return true
		}
	}
	return false
}

// parseTimes reads "HH:MM" values, dropping malformed ones, and returns them sorted.
func parseTimes(values []string) []clockTime {
	out := make([]clockTime, 0, len(values))
	for _, v := range values {
		h, m, ok := parseClock(v)
		if ok {
			out = append(out, clockTime{hour: h, minute: m})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].hour != out[j].hour {
			return out[i].hour < out[j].hour
		}
		return out[i].minute < out[j].minute
	})
	return out
}

func parseClock(v string) (int, int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(v), ":")
	if !found {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// ValidTime reports whether v is a usable "HH:MM" preferred time.
func ValidTime(v string) bool {
	_, _, ok := parseClock(v)
	return ok
}

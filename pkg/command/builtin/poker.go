package builtin

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"rtmbot/pkg/command"
)

// PokerPlanning runs one estimation round per channel:
//
//	pokerp start     open a round
//	pokerp vote N    record (or change) the caller's estimate
//	pokerp status    list who has voted
//	pokerp end       reveal the votes and the average
type PokerPlanning struct {
	mu     sync.Mutex
	rounds map[string]map[string]float64
}

func NewPokerPlanning() *PokerPlanning {
	return &PokerPlanning{rounds: make(map[string]map[string]float64)}
}

func (*PokerPlanning) Name() string { return "pokerp" }

func (p *PokerPlanning) Execute(ctx context.Context, req *command.Request) error {
	fields := strings.Fields(req.Args(p.Name()))
	if len(fields) == 0 {
		return req.Reply(ctx, "usage: pokerp start | vote <points> | status | end")
	}

	switch fields[0] {
	case "start":
		return req.Reply(ctx, p.start(req.Channel))
	case "vote":
		if len(fields) < 2 {
			return req.Reply(ctx, "usage: pokerp vote <points>")
		}
		return req.Reply(ctx, p.vote(req.Channel, req.User, fields[1]))
	case "status":
		return req.Reply(ctx, p.status(req.Channel))
	case "end":
		return req.Reply(ctx, p.end(req.Channel))
	default:
		return req.Reply(ctx, fmt.Sprintf("unknown poker planning action %q", fields[0]))
	}
}

func (p *PokerPlanning) start(channel string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, open := p.rounds[channel]; open {
		return "A poker planning round is already running in this channel."
	}
	p.rounds[channel] = make(map[string]float64)
	return "Poker planning started. Vote with: pokerp vote <points>"
}

func (p *PokerPlanning) vote(channel, user, raw string) string {
	points, err := strconv.ParseFloat(raw, 64)
	if err != nil || points < 0 || math.IsNaN(points) || math.IsInf(points, 0) {
		return fmt.Sprintf("%q is not a valid estimate", raw)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	votes, open := p.rounds[channel]
	if !open {
		return "No poker planning round is running. Start one with: pokerp start"
	}
	votes[user] = points
	return "Vote recorded."
}

func (p *PokerPlanning) status(channel string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	votes, open := p.rounds[channel]
	if !open {
		return "No poker planning round is running."
	}
	if len(votes) == 0 {
		return "No votes yet."
	}
	return fmt.Sprintf("%d vote(s) from %s", len(votes), strings.Join(mentions(votes), ", "))
}

func (p *PokerPlanning) end(channel string) string {
	p.mu.Lock()
	votes, open := p.rounds[channel]
	delete(p.rounds, channel)
	p.mu.Unlock()

	if !open {
		return "No poker planning round is running."
	}
	if len(votes) == 0 {
		return "Poker planning ended without votes."
	}

	var b strings.Builder
	b.WriteString("Poker planning results:")
	total := 0.0
	for _, user := range sortedUsers(votes) {
		total += votes[user]
		fmt.Fprintf(&b, "\n<@%s>: %s", user, formatPoints(votes[user]))
	}
	fmt.Fprintf(&b, "\nAverage: %s", formatPoints(total/float64(len(votes))))
	return b.String()
}

func sortedUsers(votes map[string]float64) []string {
	users := make([]string, 0, len(votes))
	for user := range votes {
		users = append(users, user)
	}
	slices.Sort(users)
	return users
}

func mentions(votes map[string]float64) []string {
	users := sortedUsers(votes)
	for i, user := range users {
		users[i] = "<@" + user + ">"
	}
	return users
}

func formatPoints(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

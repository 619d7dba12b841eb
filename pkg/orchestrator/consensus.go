package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Algorithm selects how votes are combined into a decision.
type Algorithm string

const (
	Majority  Algorithm = "MAJORITY"
	Unanimous Algorithm = "UNANIMOUS"
	Weighted  Algorithm = "WEIGHTED"
	Quorum    Algorithm = "QUORUM"
)

const defaultQuorumFraction = 0.5

// Vote is one agent's cast ballot.
type Vote struct {
	Agent     string    `json:"agent"`
	Choice    string    `json:"choice"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// Proposal is an open question put to a set of participants.
type Proposal struct {
	ID            string    `json:"id"`
	Topic         string    `json:"topic"`
	Algorithm     Algorithm `json:"algorithm"`
	Participants  []string  `json:"participants"`
	MinQuorum     float64   `json:"min_quorum"`
	votes         map[string]Vote
	participantOK map[string]bool
}

// Outcome is the result of tallying a proposal.
type Outcome struct {
	Decided       bool               `json:"decided"`
	Choice        string             `json:"choice,omitempty"`
	Totals        map[string]float64 `json:"totals"`
	VotesCast     int                `json:"votes_cast"`
	Participation float64            `json:"participation"`
}

// coordinatorName is the sender on proposal notifications.
const coordinatorName = "coordinator"

// Coordinator runs consensus rounds over registered agents.
type Coordinator struct {
	registry *AgentRegistry
	router   *Router

	mu        sync.Mutex
	proposals map[string]*Proposal
}

func NewCoordinator(registry *AgentRegistry, router *Router) *Coordinator {
	return &Coordinator{
		registry:  registry,
		router:    router,
		proposals: make(map[string]*Proposal),
	}
}

// Propose opens a proposal and notifies every participant with a
// consensus_proposal message carrying the proposal id, topic and
// algorithm. Every participant must be a registered agent. minQuorum
// only applies to the QUORUM algorithm; zero means half.
func (c *Coordinator) Propose(topic string, algorithm Algorithm, participants []string, minQuorum float64) (string, error) {
	switch algorithm {
	case Majority, Unanimous, Weighted, Quorum:
	default:
		return "", fmt.Errorf("unknown consensus algorithm %q", algorithm)
	}
	if len(participants) == 0 {
		return "", fmt.Errorf("proposal requires at least one participant")
	}

	participantOK := make(map[string]bool, len(participants))
	for _, name := range participants {
		if _, ok := c.registry.Get(name); !ok {
			return "", fmt.Errorf("participant '%s' not registered", name)
		}
		participantOK[name] = true
	}

	if minQuorum <= 0 {
		minQuorum = defaultQuorumFraction
	}

	proposal := &Proposal{
		ID:            uuid.NewString(),
		Topic:         topic,
		Algorithm:     algorithm,
		Participants:  append([]string(nil), participants...),
		MinQuorum:     minQuorum,
		votes:         make(map[string]Vote),
		participantOK: participantOK,
	}

	c.mu.Lock()
	c.proposals[proposal.ID] = proposal
	c.mu.Unlock()

	if c.router != nil {
		for _, name := range proposal.Participants {
			c.router.Send(MessageConsensusProposal, coordinatorName, name,
				fmt.Sprintf("Consensus proposal: %s", topic),
				map[string]any{
					"proposal_id": proposal.ID,
					"topic":       topic,
					"algorithm":   string(algorithm),
				})
		}
	}

	return proposal.ID, nil
}

// CastVote records a ballot. Re-voting replaces the agent's previous
// ballot. The vote's weight is the agent's registry weight at cast time.
func (c *Coordinator) CastVote(proposalID, agent, choice string) error {
	info, ok := c.registry.Get(agent)
	if !ok {
		return fmt.Errorf("agent '%s' not registered", agent)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	proposal, ok := c.proposals[proposalID]
	if !ok {
		return fmt.Errorf("proposal '%s' not found", proposalID)
	}
	if !proposal.participantOK[agent] {
		return fmt.Errorf("agent '%s' is not a participant in proposal '%s'", agent, proposalID)
	}

	proposal.votes[agent] = Vote{
		Agent:     agent,
		Choice:    choice,
		Weight:    info.Weight,
		Timestamp: time.Now(),
	}
	return nil
}

// Tally evaluates the proposal under its algorithm.
//
//	MAJORITY  — a choice with more than half of the votes cast wins
//	UNANIMOUS — every participant voted, all for the same choice
//	WEIGHTED  — a choice with more than half of the cast weight wins
//	QUORUM    — participation must reach the minimum fraction, then the
//	            plurality choice wins (ties stay undecided)
func (c *Coordinator) Tally(proposalID string) (Outcome, error) {
	c.mu.Lock()
	proposal, ok := c.proposals[proposalID]
	if !ok {
		c.mu.Unlock()
		return Outcome{}, fmt.Errorf("proposal '%s' not found", proposalID)
	}
	votes := make([]Vote, 0, len(proposal.votes))
	for _, v := range proposal.votes {
		votes = append(votes, v)
	}
	algorithm := proposal.Algorithm
	participants := len(proposal.Participants)
	minQuorum := proposal.MinQuorum
	c.mu.Unlock()

	outcome := Outcome{
		Totals:        make(map[string]float64),
		VotesCast:     len(votes),
		Participation: float64(len(votes)) / float64(participants),
	}

	counts := make(map[string]float64)
	weighted := make(map[string]float64)
	totalWeight := 0.0
	for _, v := range votes {
		counts[v.Choice]++
		weighted[v.Choice] += v.Weight
		totalWeight += v.Weight
	}

	switch algorithm {
	case Majority:
		outcome.Totals = counts
		choice, top := topChoice(counts)
		if top*2 > float64(len(votes)) {
			outcome.Decided = true
			outcome.Choice = choice
		}

	case Unanimous:
		outcome.Totals = counts
		if len(votes) == participants && len(counts) == 1 {
			outcome.Decided = true
			outcome.Choice = votes[0].Choice
		}

	case Weighted:
		outcome.Totals = weighted
		choice, top := topChoice(weighted)
		if totalWeight > 0 && top*2 > totalWeight {
			outcome.Decided = true
			outcome.Choice = choice
		}

	case Quorum:
		outcome.Totals = counts
		if outcome.Participation >= minQuorum {
			choice, top := topChoice(counts)
			if top > 0 && !tied(counts, top) {
				outcome.Decided = true
				outcome.Choice = choice
			}
		}
	}

	return outcome, nil
}

func topChoice(totals map[string]float64) (string, float64) {
	var choice string
	var top float64
	for c, n := range totals {
		if n > top {
			choice, top = c, n
		}
	}
	return choice, top
}

func tied(totals map[string]float64, top float64) bool {
	hits := 0
	for _, n := range totals {
		if n == top {
			hits++
		}
	}
	return hits > 1
}

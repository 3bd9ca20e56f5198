package screening

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/spigell/resume-analyzer/internal/engine"
)

const (
	ExcludeActorUser = "user"
	ExcludeActorAI   = "ai"
)

type Candidates struct {
	Items []*Candidate
}

// Candidate is one resume taking part in a screening run. ID is the source
// file path.
type Candidate struct {
	ID     string `json:"id"`
	Resume string `json:"-"`

	Evaluation *engine.MatchEvaluation `json:"evaluation,omitempty"`
	Raw        map[string]any          `json:"raw,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// Score returns the evaluated score, or -1 when the candidate was not scored.
func (c *Candidate) Score() int {
	if c.Evaluation == nil {
		return -1
	}
	return c.Evaluation.Score
}

type ExcludedCandidates struct {
	Items []*ExcludedCandidate
}

type ExcludedCandidate struct {
	ID         string
	Actor      string
	Reason     string `json:",omitempty"`
	ExcludedAt time.Time
}

func (c *Candidates) Len() int {
	return len(c.Items)
}

func (c *Candidates) FindByID(id string) *Candidate {
	for _, candidate := range c.Items {
		if candidate.ID == id {
			return candidate
		}
	}
	return nil
}

// Exclude removes candidates by ID and returns the removed IDs.
func (c *Candidates) Exclude(ids []string) []string {
	var excluded []string
	for _, id := range ids {
		for idx, candidate := range c.Items {
			if candidate.ID == id {
				c.removeByIndex(idx)
				excluded = append(excluded, candidate.ID)
				break
			}
		}
	}
	return excluded
}

func (c *Candidates) removeByIndex(idx int) {
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
}

// Rank orders candidates by score, best first. Ties keep their input order.
func (c *Candidates) Rank() {
	sort.SliceStable(c.Items, func(i, j int) bool {
		return c.Items[i].Score() > c.Items[j].Score()
	})
}

func (c *Candidates) ToExcluded(actor, reason string) *ExcludedCandidates {
	excluded := &ExcludedCandidates{}
	for _, candidate := range c.Items {
		excluded.Items = append(excluded.Items, &ExcludedCandidate{
			ID:         candidate.ID,
			Actor:      actor,
			Reason:     reason,
			ExcludedAt: time.Now().UTC(),
		})
	}
	return excluded
}

// DumpToTmpFile writes the candidates as indented JSON and returns the file name.
func (c *Candidates) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "screening_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// LoadExcluded reads an exclude file. A missing or empty file yields an empty list.
func LoadExcluded(path string) (*ExcludedCandidates, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return &ExcludedCandidates{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() == 0 {
		return &ExcludedCandidates{}, nil
	}

	var excluded ExcludedCandidates
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

func (e *ExcludedCandidates) Append(s *ExcludedCandidates) {
	e.Items = append(e.Items, s.Items...)
}

func (e *ExcludedCandidates) IDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, candidate := range e.Items {
		ids = append(ids, candidate.ID)
	}
	return ids
}

func (e *ExcludedCandidates) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

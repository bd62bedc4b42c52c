package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a generation record.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPlanning     Status = "generating_queries"
	StatusResearching  Status = "researching_sources"
	StatusSynthesizing Status = "synthesizing_content"
	StatusSuccess      Status = "success"
	StatusFailed       Status = "failed"
)

// ErrInvalidTransition is returned when a status update would move a record
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

var statusRank = map[Status]int{
	StatusPending:      0,
	StatusPlanning:     1,
	StatusResearching:  2,
	StatusSynthesizing: 3,
	StatusSuccess:      4,
	StatusFailed:       4,
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further stage may touch the record.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanAdvanceTo reports whether moving from s to next is a legal transition.
// Terminal states accept nothing; backward moves are rejected. Re-entering
// the current in-progress status is allowed so a re-run of a half-finished
// stage passes its entry guard.
func (s Status) CanAdvanceTo(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	if next == s {
		return s != StatusPending
	}
	return statusRank[next] == statusRank[s]+1
}

// Stage names used on the wire and in the chain registry.
const (
	StagePlan       = "plan"
	StageResearch   = "research"
	StageSynthesize = "synthesize"
)

// StageForStatus maps a non-terminal status to the stage that should run
// next. Used by the sweeper to re-trigger stalled records.
func StageForStatus(s Status) (string, bool) {
	switch s {
	case StatusPending:
		return StagePlan, true
	case StatusPlanning:
		return StagePlan, true
	case StatusResearching:
		return StageResearch, true
	case StatusSynthesizing:
		return StageSynthesize, true
	default:
		return "", false
	}
}

// NextStage returns the stage that follows the given one, or "" for the last.
func NextStage(stage string) string {
	switch stage {
	case StagePlan:
		return StageResearch
	case StageResearch:
		return StageSynthesize
	default:
		return ""
	}
}

// KnownStage reports whether name is a registered stage name.
func KnownStage(name string) bool {
	return name == StagePlan || name == StageResearch || name == StageSynthesize
}

// NewsAngle is one editorial perspective the planner chooses to cover.
type NewsAngle struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// GenerationContext captures the editorial framing produced by stage one and
// consumed verbatim by stage three.
type GenerationContext struct {
	Audience   string      `json:"audience"`
	Persona    string      `json:"persona"`
	Goal       string      `json:"goal"`
	NewsAngles []NewsAngle `json:"news_angles"`
}

// ResearchArticle is one relevant source with its extracted substance.
type ResearchArticle struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Author        string   `json:"author,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Summary       string   `json:"summary"`
	KeyFacts      []string `json:"key_facts"`
	Opinions      []string `json:"opinions"`
}

// SourceRef attributes a content section to a research article.
type SourceRef struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Section is one thematic block of the synthesized review.
type Section struct {
	Title   string      `json:"title"`
	Text    string      `json:"text"`
	Sources []SourceRef `json:"sources"`
}

// Content is the final synthesized press review.
type Content struct {
	Headline string    `json:"headline"`
	Intro    string    `json:"intro"`
	Sections []Section `json:"sections"`
}

// Generation is the durable record of one pipeline run.
type Generation struct {
	ID                string             `json:"id"`
	SubscriptionID    string             `json:"subscription_id"`
	Topic             string             `json:"topic"`
	ScheduleCron      string             `json:"schedule_cron"`
	Status            Status             `json:"status"`
	GenerationContext *GenerationContext `json:"generation_context,omitempty"`
	GeneratedQueries  []string           `json:"generated_queries,omitempty"`
	ResearchResults   []ResearchArticle  `json:"research_results,omitempty"`
	Content           *Content           `json:"content,omitempty"`
	Error             string             `json:"error,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	GeneratedAt       *time.Time         `json:"generated_at,omitempty"`
}

// Subscription is the recurring press-review request a generation belongs to.
type Subscription struct {
	ID           string    `json:"id"`
	Topic        string    `json:"topic"`
	ScheduleCron string    `json:"schedule_cron"`
	CreatedAt    time.Time `json:"created_at"`
}

// ValidateContent checks the structural rules the synthesizer must satisfy
// before a record can succeed.
func ValidateContent(c Content) error {
	if c.Headline == "" {
		return fmt.Errorf("content missing headline")
	}
	if c.Intro == "" {
		return fmt.Errorf("content missing intro")
	}
	if len(c.Sections) == 0 {
		return fmt.Errorf("content has no sections")
	}
	for i, sec := range c.Sections {
		if sec.Title == "" || sec.Text == "" {
			return fmt.Errorf("section %d missing title or text", i)
		}
	}
	return nil
}

package types

import "time"

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// AttackResult is the primary ROI record for one attack on one batch.
// Append-only: exactly one entry per applied attack, in application order.
type AttackResult struct {
	Attack          string  `json:"attack"`
	NewCracks       int64   `json:"newCracks"`
	DurationSeconds float64 `json:"durationSeconds"`
	CrackRate       float64 `json:"crackRate"`
}

// FeedbackSummary records what the feedback stage produced for a batch
type FeedbackSummary struct {
	NewRoots       int       `json:"newRoots"`
	NewRules       int       `json:"newRules"`
	CohortMatched  int       `json:"cohortMatched"`
	OraclePromoted int       `json:"oraclePromoted"`
	FeedbackCracks int64     `json:"feedbackCracks"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// BatchRecord is the per-batch entry in the state store
type BatchRecord struct {
	HashlistID       string            `json:"hashlistId,omitempty"`
	HashCount        int64             `json:"hashCount"`
	AttacksApplied   []string          `json:"attacksApplied"`
	AttacksRemaining []string          `json:"attacksRemaining"`
	TaskIDs          map[string]string `json:"taskIds,omitempty"`
	Cracked          int64             `json:"cracked"`
	AttackResults    []AttackResult    `json:"attackResults"`
	StartedAt        *time.Time        `json:"startedAt,omitempty"`
	LastAttackAt     *time.Time        `json:"lastAttackAt,omitempty"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
	Status           BatchStatus       `json:"status"`
	Error            string            `json:"error,omitempty"`
	Feedback         *FeedbackSummary  `json:"feedback,omitempty"`
}

// AttackStats aggregates one attack's performance across all batches.
// AvgRate is recomputed from the totals on every update.
type AttackStats struct {
	Attempted      int     `json:"attempted"`
	TotalCracked   int64   `json:"totalCracked"`
	TotalHashes    int64   `json:"totalHashes"`
	AvgRate        float64 `json:"avgRate"`
	AvgTimeSeconds float64 `json:"avgTimeSeconds"`
	Ineffective    bool    `json:"ineffective,omitempty"`
}

// State is the authoritative view of Stage 2 pipeline progress
type State struct {
	Batches     map[string]*BatchRecord `json:"batches"`
	AttackStats map[string]*AttackStats `json:"attackStats"`
	// AttackOrder is consulted only when initializing future batches;
	// a running batch follows its own attacksRemaining.
	AttackOrder []string  `json:"attackOrder,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Stage1Record is the per-batch entry in the Stage 1 state store
type Stage1Record struct {
	Status          BatchStatus `json:"status"`
	HashCount       int64       `json:"hashCount"`
	PearlCount      int64       `json:"pearlCount"`
	SandCount       int64       `json:"sandCount"`
	CrackRate       string      `json:"crackRate"`
	DurationSeconds float64     `json:"durationSeconds"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// Stage1State is the authoritative view of Stage 1 progress
type Stage1State struct {
	Batches   map[string]*Stage1Record `json:"batches"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

// AttackMode distinguishes how the coordination service runs an attack
type AttackMode string

const (
	AttackModeDictionary AttackMode = "dictionary" // wordlist, optional rules
	AttackModeMask       AttackMode = "mask"       // pure brute-force mask
	AttackModeHybrid     AttackMode = "hybrid"     // wordlist + mask
)

// AttackSpec is the compiled-in definition of one named attack.
// Each attack name maps to exactly one remote command template.
type AttackSpec struct {
	Name     string
	Tier     int
	Mode     AttackMode
	Command  string // remote command template for the cracking binary
	Wordlist string // wordlist file name on the service, if any
	Rules    string // rule file name on the service, if any
	Mask     string // mask, for mask/hybrid modes
	// Feedback marks attacks that consume the wordlist and rules grown
	// by the feedback loop.
	Feedback bool
}

// CrackedPair is one recovered (hash, plaintext) pair
type CrackedPair struct {
	Hash  string `json:"hash"`
	Plain string `json:"plain"`
}

// TaskStatus is the coordination service's view of a running task
type TaskStatus struct {
	TaskID           string
	PercentComplete  float64
	Keyspace         int64
	KeyspaceProgress int64
	IsArchived       bool
	CrackedCount     int64
}

// JobResult is what the remote job controller reports for a finished attack
type JobResult struct {
	NewCracks       int64
	DurationSeconds float64
}

// FailureKind classifies remote job failures
type FailureKind string

const (
	FailureNetwork FailureKind = "network"
	FailureLaunch  FailureKind = "launch"
	FailureOrphan  FailureKind = "orphan"
	FailureTimeout FailureKind = "timeout"
)

package store

// Status values for Session.Status.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// Knowledge observation types, ranked higher by the scoring engine
// and exempt from retention by default.
var KnowledgeTypes = map[string]bool{
	"constraint": true,
	"decision":   true,
	"heuristic":  true,
	"rejected":   true,
}

// Session represents one agent working period.
type Session struct {
	ID                int64
	ContentSessionID  string
	Project           string
	UserPrompt        string
	Status            string
	StartedAtEpoch    int64
	CompletedAtEpoch  *int64
}

// Observation is the atomic record of a tool use.
type Observation struct {
	ID                int64
	MemorySessionID   *int64
	Project           string
	Type              string
	Title             string
	Subtitle          string
	Text              string
	Narrative         string
	Facts             string
	Concepts          string
	FilesRead         string
	FilesModified     string
	PromptNumber      int
	CreatedAtEpoch    int64
	ContentHash       string
	DiscoveryTokens   int
	LastAccessedEpoch *int64
	IsStale           bool
	AutoCategory      string
}

// IsKnowledge reports whether this observation's type is a knowledge type.
func (o *Observation) IsKnowledge() bool {
	return KnowledgeTypes[o.Type]
}

// Summary is the end-of-session digest.
type Summary struct {
	ID             int64
	SessionID      int64
	Project        string
	Request        string
	Investigated   string
	Learned        string
	Completed      string
	NextSteps      string
	Notes          string
	CreatedAtEpoch int64
}

// Checkpoint is a resumable pointer into a session's work.
type Checkpoint struct {
	ID              int64
	SessionID       int64
	Project         string
	Task            string
	Progress        string
	NextSteps       string
	OpenQuestions   string
	RelevantFiles   string
	ContextSnapshot string // serialized JSON list of up to 10 observation headers
	CreatedAtEpoch  int64
}

// UserPrompt records one prompt a user gave within a session.
type UserPrompt struct {
	ID               int64
	ContentSessionID string
	Project          string
	PromptNumber     int
	PromptText       string
	CreatedAtEpoch   int64
}

// Embedding is the BLOB-packed vector for one observation.
type Embedding struct {
	ObservationID  int64
	Vector         []byte
	ModelProvider  string
	Dimensions     int
	CreatedAtEpoch int64
}

// ProjectAlias maps an internal project name to a display name.
type ProjectAlias struct {
	ProjectName string
	DisplayName string
}

// ObservationLink is a plugin-produced join row to an external artifact.
type ObservationLink struct {
	ID             int64
	ObservationID  int64
	LinkType       string
	Repo           string
	Number         *int64
	Action         string
	URL            string
	CreatedAtEpoch int64
}

// DuplicateID is returned by Ingest-facing writes when a dedup window hit
// suppresses the insert.
const DuplicateID int64 = -1

package cloudjob

// Status is the lifecycle status of a job.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusCancelled
}

// validTransition enforces created -> running -> terminal.
func validTransition(from, to Status) bool {
	switch from {
	case StatusCreated:
		return to == StatusRunning
	case StatusRunning:
		return to.Terminal()
	default:
		return false
	}
}

// Name identifies a job type.
type Name string

// Root workflows, selectable by callers.
const (
	NameCreateFreeSubscriptionAndDatabase Name = "create-free-subscription-and-database"
	NameCreateFreeDatabase                Name = "create-free-database"
	NameImportFreeDatabase                Name = "import-free-database"
)

// Steps composed by the root workflows.
const (
	NameEnsureFreeSubscription    Name = "ensure-free-subscription"
	NameEnsureFreeDatabase        Name = "ensure-free-database"
	NameWaitForTask               Name = "wait-for-task"
	NameWaitForActiveSubscription Name = "wait-for-active-subscription"
	NameWaitForActiveDatabase     Name = "wait-for-active-database"
	NameImportDatabase            Name = "import-database"
)

// Step is the coarse phase of a root workflow, shown to users as progress.
type Step string

const (
	StepCredentials  Step = "credentials"
	StepSubscription Step = "subscription"
	StepDatabase     Step = "database"
	StepImport       Step = "import"
)

// ErrorInfo describes a failure in terms a caller can act on.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Job     Name   `json:"job,omitempty"`
}

// PollProgress is published while a job waits on the remote system.
type PollProgress struct {
	Attempt   int    `json:"attempt"`
	Elapsed   string `json:"elapsed"`
	Timeout   string `json:"timeout"`
	LastError string `json:"lastError,omitempty"`
}

// State is a snapshot of a job. Child holds the state of the child job
// currently (or last) run by this one.
type State struct {
	ID       string     `json:"id,omitempty"`
	Name     Name       `json:"name"`
	Status   Status     `json:"status"`
	Step     Step       `json:"step,omitempty"`
	Progress any        `json:"progress,omitempty"`
	Child    *State     `json:"child,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
	Result   any        `json:"result,omitempty"`
}

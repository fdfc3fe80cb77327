package model

// DocumentStatus is the ingestion state of a document. The empty value
// means the document was created without a processing request yet.
type DocumentStatus string

const (
	StatusNone       DocumentStatus = ""
	StatusPending    DocumentStatus = "PENDING"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusReady      DocumentStatus = "READY"
	StatusFailed     DocumentStatus = "FAILED"
)

// MaxErrorMessageLen bounds the persisted error_message column.
const MaxErrorMessageLen = 500

// Transition sets for the compare-and-set primitive. Every legal move of
// the ingestion state machine is one of these from-sets paired with a
// target status; no other combination is ever issued.
var (
	// EnqueueableStatuses may move to PENDING (initial enqueue or reprocess).
	EnqueueableStatuses = []DocumentStatus{StatusNone, StatusPending, StatusReady, StatusFailed}

	// ClaimableStatuses may move to PROCESSING when a worker claims the job.
	ClaimableStatuses = []DocumentStatus{StatusNone, StatusPending, StatusFailed}

	// FinishableStatuses may move to READY or FAILED when a worker completes.
	FinishableStatuses = []DocumentStatus{StatusProcessing}
)

// TruncateErrorMessage clips msg to MaxErrorMessageLen runes so the
// persisted column never overflows.
func TruncateErrorMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxErrorMessageLen {
		return msg
	}
	return string(runes[:MaxErrorMessageLen])
}

package domain

// AssetStatus lifecycle state of a VideoAsset
type AssetStatus string

const (
	// StatusPendingUpload slot issued, bytes not seen yet
	StatusPendingUpload AssetStatus = "PendingUpload"
	// StatusValidating object created notification received
	StatusValidating AssetStatus = "Validating"
	// StatusRejected terminal, quarantine object failed validation
	StatusRejected AssetStatus = "Rejected"
	// StatusPromoting durable copy in progress or done
	StatusPromoting AssetStatus = "Promoting"
	// StatusTranscoding job submitted
	StatusTranscoding AssetStatus = "Transcoding"
	// StatusReady terminal, rendition playable
	StatusReady AssetStatus = "Ready"
	// StatusTranscodeFailed terminal
	StatusTranscodeFailed AssetStatus = "TranscodeFailed"
)

var transitions = map[AssetStatus][]AssetStatus{
	StatusPendingUpload: {StatusValidating},
	StatusValidating:    {StatusRejected, StatusPromoting},
	StatusPromoting:     {StatusTranscoding, StatusTranscodeFailed},
	StatusTranscoding:   {StatusReady, StatusTranscodeFailed},
}

// CanTransition report whether from -> to is in the transition table
func CanTransition(from, to AssetStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal no transition leaves s
func (s AssetStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Valid s is one of the known states
func (s AssetStatus) Valid() bool {
	switch s {
	case StatusPendingUpload, StatusValidating, StatusRejected, StatusPromoting,
		StatusTranscoding, StatusReady, StatusTranscodeFailed:
		return true
	}
	return false
}

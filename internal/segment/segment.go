package segment

import (
	"fmt"
	"strconv"
	"strings"
)

// keyDelimiter separates identity fields inside a segment key. Field
// values must not contain it, otherwise two distinct identities could
// collide on the same key.
const keyDelimiter = ":"

// Status is the advisory processing state of a segment. It is stored
// with its own TTL and never used for mutual exclusion.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// CompletionMarker is the value stored under the completion key and the
// payload published on the completion channel. Subscribers ignore any
// other payload.
const CompletionMarker = "1"

// Identity pinpoints one segment inside a job. Two identities are equal
// iff all five fields are equal, so the zero-cost struct comparison is
// the equality check.
type Identity struct {
	JobID        string
	StreamType   string
	Quality      string
	StreamIndex  int
	SegmentIndex int
}

// NewIdentity validates the string fields against the key delimiter and
// returns the identity. Index fields are numeric and cannot collide.
func NewIdentity(jobID, streamType, quality string, streamIndex, segmentIndex int) (Identity, error) {
	for _, f := range []struct{ name, value string }{
		{"job id", jobID},
		{"stream type", streamType},
		{"quality", quality},
	} {
		if f.value == "" {
			return Identity{}, fmt.Errorf("%s must not be empty", f.name)
		}

		if strings.Contains(f.value, keyDelimiter) {
			return Identity{}, fmt.Errorf("%s %q must not contain %q", f.name, f.value, keyDelimiter)
		}
	}

	return Identity{
		JobID:        jobID,
		StreamType:   streamType,
		Quality:      quality,
		StreamIndex:  streamIndex,
		SegmentIndex: segmentIndex,
	}, nil
}

// Key serializes the identity to its canonical segment key, the
// namespace root for every derived key and channel.
func (id Identity) Key() string {
	return strings.Join([]string{
		id.JobID,
		id.StreamType,
		id.Quality,
		strconv.Itoa(id.StreamIndex),
		strconv.Itoa(id.SegmentIndex),
	}, keyDelimiter)
}

func (id Identity) String() string {
	return id.Key()
}

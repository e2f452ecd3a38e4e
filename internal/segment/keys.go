package segment

// Key namespace layout, one record per concern:
//
//	{prefix}lock:{segmentKey}      - lease record (value = owner id)
//	{prefix}status:{segmentKey}    - advisory status record
//	{prefix}completed:{segmentKey} - durable completion marker
//	{prefix}complete:{segmentKey}  - completion pub/sub channel
const (
	lockKeyPrefix        = "lock:"
	statusKeyPrefix      = "status:"
	completionKeyPrefix  = "completed:"
	completionChanPrefix = "complete:"
)

// Keys derives the store keys and notification channel for segments
// under a fixed namespace prefix. It is a pure value; deriving keys
// never fails.
type Keys struct {
	prefix string
}

func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

func (k Keys) Lock(id Identity) string {
	return k.prefix + lockKeyPrefix + id.Key()
}

func (k Keys) Status(id Identity) string {
	return k.prefix + statusKeyPrefix + id.Key()
}

func (k Keys) Completion(id Identity) string {
	return k.prefix + completionKeyPrefix + id.Key()
}

func (k Keys) CompletionChannel(id Identity) string {
	return k.prefix + completionChanPrefix + id.Key()
}

// LockPattern matches every lease key under the prefix, for scans.
func (k Keys) LockPattern() string {
	return k.prefix + lockKeyPrefix + "*"
}

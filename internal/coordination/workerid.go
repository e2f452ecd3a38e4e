package coordination

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
)

// GenerateWorkerID returns a unique identity for this process
// (hostname+pid+random). Lease ownership checks compare this string, so
// it must differ between any two workers that could race on a segment.
func GenerateWorkerID() string {
	host, _ := os.Hostname()
	pid := os.Getpid()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(pid) + "-" + hex.EncodeToString(rnd)
}

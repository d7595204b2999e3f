package vars

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Every occurrence is computed independently: two {{$guid}} tokens in the
// same text produce two different values.
func resolveDynamic(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "$timestamp", "$timestamp_unix":
		return strconv.FormatInt(time.Now().Unix(), 10), true
	case "$datetime":
		return time.Now().UTC().Format("2006-01-02 15:04:05"), true
	case "$date":
		return time.Now().UTC().Format("2006-01-02"), true
	case "$time":
		return time.Now().UTC().Format("15:04:05"), true
	case "$uuid", "$guid":
		return generateUUID(), true
	case "$randomint":
		n, _ := rand.Int(rand.Reader, big.NewInt(1<<31))
		return n.String(), true
	default:
		return "", false
	}
}

func generateUUID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

package config

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"

	"github.com/google/uuid"
)

// machineIDFiles are read in order; the first non-empty one wins.
var machineIDFiles = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
	"/sys/class/dmi/id/product_uuid",
}

// DefaultNodeID derives a node id that is stable across restarts: "node-"
// plus 8 hex characters of a hash of the machine id and hostname. Hosts
// with neither get a random id.
func DefaultNodeID() string {
	return nodeIDFrom(readMachineID(machineIDFiles), hostname())
}

func nodeIDFrom(machineID, host string) string {
	if machineID == "" && host == "" {
		return "node-" + uuid.New().String()[:8]
	}
	sum := sha256.Sum256([]byte(machineID + ":" + host))
	return "node-" + hex.EncodeToString(sum[:])[:8]
}

func readMachineID(paths []string) string {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	return ""
}

func hostname() string {
	h, _ := os.Hostname()
	return h
}

package backupresult

import (
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/profile-backup/pkg/util"
)

// Status represents the terminal state of a single profile's backup.
type Status int

// Constants for Status, acting as an enum.
const (
	Pending Status = iota
	Success
	Skipped
	Failed
)

var statusToString = map[Status]string{
	Pending: "pending",
	Success: "success",
	Skipped: "skipped",
	Failed:  "failed",
}
var stringToStatus map[string]Status

func init() {
	stringToStatus = util.InvertMap(statusToString)
}

// String returns the string representation of a Status.
func (s Status) String() string {
	if str, ok := statusToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_status(%d)", s)
}

// ParseStatus parses a string and returns the corresponding Status.
func ParseStatus(s string) (Status, error) {
	if status, ok := stringToStatus[s]; ok {
		return status, nil
	}
	return 0, fmt.Errorf("invalid status: %q. Must be 'pending', 'success', 'skipped' or 'failed'", s)
}

// MarshalJSON implements the json.Marshaler interface for Status.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Status.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("status should be a string, got %s", data)
	}
	status, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

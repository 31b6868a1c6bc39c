package planner

import (
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/profile-backup/pkg/util"
)

// Mode represents the backup strategy applied to each profile.
type Mode int

// Constants for Mode, acting as an enum.
const (
	Mirror Mode = iota
	Compress
)

var modeToString = map[Mode]string{
	Mirror:   "mirror",
	Compress: "compress",
}
var stringToMode = map[string]Mode{}

func init() {
	stringToMode = util.InvertMap(modeToString)
}

// String returns the string representation of a Mode.
func (m Mode) String() string {
	if str, ok := modeToString[m]; ok {
		return str
	}
	return fmt.Sprintf("unknown_backup_mode(%d)", m)
}

// ParseMode parses a string and returns the corresponding Mode.
func ParseMode(s string) (Mode, error) {
	if mode, ok := stringToMode[s]; ok {
		return mode, nil
	}
	return 0, fmt.Errorf("invalid backup mode: %q. Must be 'mirror' or 'compress'", s)
}

// MarshalJSON implements the json.Marshaler interface for Mode.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Mode.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("Mode should be a string, got %s", data)
	}

	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

package profilearchive

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/paulschiretz/profile-backup/pkg/util"
)

// Level represents the desired trade-off between speed and size of the compression.
type Level string

const (
	// Optimal is the default balance between speed and ratio.
	Optimal Level = "optimal"
	// Fastest trades ratio for throughput.
	Fastest Level = "fastest"
	// None stores entries without compression where the format supports it.
	None Level = "none"
)

var levelToString = map[Level]string{
	Optimal: "optimal",
	Fastest: "fastest",
	None:    "none",
}

var stringToLevel map[string]Level

func init() {
	stringToLevel = util.InvertMap(levelToString)
}

func (l Level) String() string {
	if str, ok := levelToString[l]; ok {
		return str
	}
	return string(Optimal)
}

// ParseLevel parses a string into a compression Level.
// It defaults to the optimal level if the string is empty.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return Optimal, nil
	}
	if l, ok := stringToLevel[s]; ok {
		return l, nil
	}
	return "", fmt.Errorf("invalid compression level: %q. Must be 'optimal', 'fastest', or 'none'", s)
}

// flateLevel maps the Level to a flate compression level for zip entries.
func (l Level) flateLevel() int {
	switch l {
	case Fastest:
		return flate.BestSpeed
	case None:
		return flate.NoCompression
	default:
		return flate.DefaultCompression
	}
}

// pgzipLevel maps the Level to a pgzip compression level for tar.gz archives.
func (l Level) pgzipLevel() int {
	switch l {
	case Fastest:
		return pgzip.BestSpeed
	case None:
		return pgzip.NoCompression
	default:
		return pgzip.DefaultCompression
	}
}

// zstdLevel maps the Level to a zstd encoder level for tar.zst archives.
// zstd has no stored mode, so None degrades to the fastest encoder.
func (l Level) zstdLevel() zstd.EncoderLevel {
	switch l {
	case Fastest, None:
		return zstd.SpeedFastest
	default:
		return zstd.SpeedDefault
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("compression level should be a string, got %s", data)
	}
	level, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

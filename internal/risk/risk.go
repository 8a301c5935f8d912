// Package risk maps open TCP ports to well-known services and a qualitative
// exposure level, and derives an overall verdict for a set of open ports.
//
// Classification is a pure table lookup. Ports that are not in the table are
// omitted from an assessment rather than reported as errors.
package risk

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Level is the qualitative risk of exposing a service.
type Level int

const (
	Low Level = iota
	Medium
	High
	VeryHigh
)

var levelNames = [...]string{
	Low:      "low",
	Medium:   "medium",
	High:     "high",
	VeryHigh: "very_high",
}

// String returns the snake_case level name.
func (l Level) String() string {
	if l < Low || l > VeryHigh {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel parses a level name as produced by String.
func ParseLevel(s string) (Level, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for l, name := range levelNames {
		if name == normalized {
			return Level(l), nil
		}
	}
	return Low, fmt.Errorf("unknown risk level %q", s)
}

// MarshalJSON encodes the level by name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Risky reports whether the level counts toward the overall verdict.
func (l Level) Risky() bool {
	return l != Low
}

// Entry describes the risk of a single open port.
type Entry struct {
	Port        int    `json:"port"`
	Service     string `json:"service"`
	Level       Level  `json:"risk_level"`
	Description string `json:"description"`
}

// Assessment is the classification of a set of open ports.
type Assessment struct {
	Entries    []Entry `json:"entries"`
	RiskyCount int     `json:"risky_count"`
	Overall    Level   `json:"overall_risk"`
}

// Thresholds on the number of risky entries.
const (
	highThreshold   = 3
	mediumThreshold = 1
)

var knownPorts = map[int]Entry{
	21:   {Port: 21, Service: "FTP", Level: High, Description: "FTP transfers credentials in clear text"},
	22:   {Port: 22, Service: "SSH", Level: Low, Description: "SSH is low risk when properly configured"},
	23:   {Port: 23, Service: "Telnet", Level: VeryHigh, Description: "Telnet has no encryption at all"},
	25:   {Port: 25, Service: "SMTP", Level: Medium, Description: "SMTP may allow relaying or user enumeration"},
	53:   {Port: 53, Service: "DNS", Level: Low, Description: "DNS"},
	80:   {Port: 80, Service: "HTTP", Level: Medium, Description: "HTTP traffic is unencrypted"},
	110:  {Port: 110, Service: "POP3", Level: High, Description: "POP3 sends mail credentials in clear text"},
	143:  {Port: 143, Service: "IMAP", Level: High, Description: "IMAP sends mail credentials in clear text"},
	443:  {Port: 443, Service: "HTTPS", Level: Low, Description: "HTTPS"},
	993:  {Port: 993, Service: "IMAPS", Level: Low, Description: "IMAP over TLS"},
	995:  {Port: 995, Service: "POP3S", Level: Low, Description: "POP3 over TLS"},
	1433: {Port: 1433, Service: "MSSQL", Level: High, Description: "Database exposed to the network"},
	3306: {Port: 3306, Service: "MySQL", Level: High, Description: "Database exposed to the network"},
	3389: {Port: 3389, Service: "RDP", Level: High, Description: "Remote desktop is a frequent brute-force target"},
	5432: {Port: 5432, Service: "PostgreSQL", Level: High, Description: "Database exposed to the network"},
	5900: {Port: 5900, Service: "VNC", Level: High, Description: "VNC often runs with weak or no authentication"},
	8080: {Port: 8080, Service: "HTTP-Proxy", Level: Medium, Description: "Alternate HTTP or proxy port, usually unencrypted"},
}

// Lookup returns the table entry for port.
func Lookup(port int) (Entry, bool) {
	entry, ok := knownPorts[port]
	return entry, ok
}

// Classify builds an assessment for openPorts, keeping the input order.
func Classify(openPorts []int) Assessment {
	assessment := Assessment{Entries: []Entry{}}

	for _, port := range openPorts {
		entry, ok := knownPorts[port]
		if !ok {
			continue
		}
		assessment.Entries = append(assessment.Entries, entry)
		if entry.Level.Risky() {
			assessment.RiskyCount++
		}
	}

	assessment.Overall = overall(assessment.RiskyCount)
	return assessment
}

func overall(risky int) Level {
	switch {
	case risky >= highThreshold:
		return High
	case risky >= mediumThreshold:
		return Medium
	default:
		return Low
	}
}

// Table returns every known port, ascending by port number.
func Table() []Entry {
	entries := make([]Entry, 0, len(knownPorts))
	for _, entry := range knownPorts {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Port < entries[j].Port })
	return entries
}

package model

// Client is a deduplicated party across all processes of a run. Key is the
// identity key: the tax document when present, otherwise the name.
type Client struct {
	ID         string          `json:"id,omitempty"`
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	Document   string          `json:"document,omitempty"`
	PersonType PersonType      `json:"person_type"`
	Processes  []ClientProcess `json:"processes"`
}

// ClientProcess is one process a client participates in.
type ClientProcess struct {
	ProcessNumber string `json:"process_number"`
	Role          Role   `json:"role"`
}

// ClientLink relates a client identity to a process.
type ClientLink struct {
	ClientKey     string `json:"client_key"`
	ProcessNumber string `json:"process_number"`
	Role          Role   `json:"role"`
}

package azutil

import "github.com/mongodb/grip/message"

// MakeAPILogMessage creates a structured message for debugging Azure API
// calls.
func MakeAPILogMessage(endpoint string, in interface{}) message.Fields {
	return message.Fields{
		"message":  "Azure API call",
		"endpoint": endpoint,
		"input":    in,
	}
}
